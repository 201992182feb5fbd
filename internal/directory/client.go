package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"server/config"
	"server/internal/logger"
	. "server/internal/models"
	"strconv"

	"github.com/hashicorp/go-retryablehttp"
)

// Client ranks candidate donors for a blood group around a location. The
// scoring itself lives in an external matching service; this is only its
// consumer.
type Client interface {
	Rank(ctx context.Context, bloodGroup string, latitude, longitude float64) ([]CandidateDonor, error)
}

type HTTPClient struct {
	client  *retryablehttp.Client
	baseURL string
	log     logger.Logger
}

func NewHTTPClient(config config.Config) *HTTPClient {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.Logger = nil

	return &HTTPClient{
		client:  client,
		baseURL: config.DirectoryURL,
		log:     logger.New("directoryClient"),
	}
}

type rankResponse struct {
	Donors []CandidateDonor `json:"donors"`
}

func (c *HTTPClient) Rank(ctx context.Context, bloodGroup string, latitude, longitude float64) ([]CandidateDonor, error) {
	log := c.log.Function("Rank")

	query := url.Values{}
	query.Set("blood_group", bloodGroup)
	query.Set("latitude", strconv.FormatFloat(latitude, 'f', -1, 64))
	query.Set("longitude", strconv.FormatFloat(longitude, 'f', -1, 64))
	endpoint := fmt.Sprintf("%s/match?%s", c.baseURL, query.Encode())

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, log.Err("failed to build rank request", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, log.Err("failed to reach donor directory", err, "bloodGroup", bloodGroup)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, log.Error("donor directory returned an error",
			"bloodGroup", bloodGroup, "status", resp.StatusCode)
	}

	var ranked rankResponse
	if err := json.NewDecoder(resp.Body).Decode(&ranked); err != nil {
		return nil, log.Err("failed to decode donor directory response", err)
	}

	return ranked.Donors, nil
}
