// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package releasecheck asks a GitHub releases endpoint for the
// latest published version. [Checker] satisfies the monitor client's
// VersionChecker.
package releasecheck

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bureau-foundation/edge-desktop/lib/netutil"
	"github.com/bureau-foundation/edge-desktop/lib/version"
)

// DefaultURL is the latest-release endpoint for the desktop client.
const DefaultURL = "https://api.github.com/repos/openziti/desktop-edge-win/releases/latest"

// githubAPIVersion pins the REST API version header.
const githubAPIVersion = "2022-11-28"

// Config configures a Checker. Zero fields take defaults.
type Config struct {
	URL        string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Checker fetches the latest release tag.
type Checker struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// HTTPError is a non-2xx answer from the releases endpoint.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("releasecheck: HTTP %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

type release struct {
	TagName    string `json:"tag_name"`
	Name       string `json:"name"`
	Draft      bool   `json:"draft"`
	Prerelease bool   `json:"prerelease"`
}

// New returns a Checker.
func New(config Config) *Checker {
	if config.URL == "" {
		config.URL = DefaultURL
	}
	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Checker{
		url:        config.URL,
		httpClient: config.HTTPClient,
		logger:     config.Logger,
	}
}

// Latest returns the tag of the latest release, such as "2.1.4".
// A leading "v" is kept; version comparison accepts it.
func (c *Checker) Latest(ctx context.Context) (string, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return "", fmt.Errorf("releasecheck: creating request: %w", err)
	}
	request.Header.Set("Accept", "application/vnd.github+json")
	request.Header.Set("X-GitHub-Api-Version", githubAPIVersion)
	request.Header.Set("User-Agent", version.UserAgent())

	response, err := c.httpClient.Do(request)
	if err != nil {
		return "", fmt.Errorf("releasecheck: GET %s: %w", c.url, err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return "", &HTTPError{StatusCode: response.StatusCode, Body: netutil.ErrorBody(response.Body)}
	}

	var latest release
	if err := netutil.DecodeResponse(response.Body, &latest); err != nil {
		return "", fmt.Errorf("releasecheck: decoding release: %w", err)
	}
	if latest.TagName == "" {
		return "", fmt.Errorf("releasecheck: release has no tag_name")
	}
	if latest.Draft || latest.Prerelease {
		c.logger.Debug("latest release is not final", "tag", latest.TagName)
	}
	return latest.TagName, nil
}
