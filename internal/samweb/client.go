// Package samweb talks to the SAM data catalog over its web API.
package samweb

import (
	"context"
	"crypto/tls"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/atcsutton/ANNIEGrid/internal/config"
	"github.com/atcsutton/ANNIEGrid/internal/utils"
	"resty.dev/v3"
)

// Error is returned for any non-2xx response from the SAM web server.
type Error struct {
	Method string
	URL    string
	Status int
	Body   string
}

func (e *Error) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("samweb %s %s: HTTP %d", e.Method, e.URL, e.Status)
	}
	return fmt.Sprintf("samweb %s %s: HTTP %d: %s", e.Method, e.URL, e.Status, body)
}

// ProjectRequest describes a SAM project to start.
type ProjectRequest struct {
	Name    string
	Station string
	Group   string
	DefName string
}

// Project is a started SAM project.
type Project struct {
	Name string
	URL  string
}

// Client is a SAM web API client for one experiment.
type Client struct {
	http *resty.Client
}

// NewClient builds a client from the SAM web settings. The certificate, when
// set, is presented for X.509 authentication. Servers are verified against
// the CA files in cfg.CADir when that directory holds any, and against the
// system roots otherwise.
func NewClient(cfg config.SamWebConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("samweb base URL is not configured")
	}

	c := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Accept", "text/plain")
	if cfg.Timeout > 0 {
		c.SetTimeout(cfg.Timeout)
	}

	if cfg.Cert != "" {
		key := cfg.Key
		if key == "" {
			key = cfg.Cert
		}
		cert, err := tls.LoadX509KeyPair(cfg.Cert, key)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to load certificate %s: %w", cfg.Cert, err)
		}
		c.SetCertificates(cert)
	}

	if cas := caFiles(cfg.CADir); len(cas) > 0 {
		utils.PrintDebug("samweb: trusting %d CA files from %s", len(cas), cfg.CADir)
		c.SetRootCertificates(cas...)
	}

	return &Client{http: c}, nil
}

// caFiles lists the PEM files of a grid CA directory, both the *.pem names
// and the hashed *.0 links.
func caFiles(dir string) []string {
	if dir == "" || !utils.DirExists(dir) {
		return nil
	}
	var files []string
	for _, pattern := range []string{"*.pem", "*.0"} {
		matches, _ := filepath.Glob(filepath.Join(dir, pattern))
		files = append(files, matches...)
	}
	return files
}

// Close releases idle connections.
func (c *Client) Close() error {
	return c.http.Close()
}

// CountFiles returns the number of files in a dataset definition.
func (c *Client) CountFiles(ctx context.Context, defname string) (int, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("defname", defname).
		Get("/files/count")
	if err != nil {
		return 0, fmt.Errorf("failed to count files in %s: %w", defname, err)
	}
	if !resp.IsSuccess() {
		return 0, responseError(resp)
	}

	body := strings.TrimSpace(resp.String())
	n, err := strconv.Atoi(body)
	if err != nil {
		return 0, fmt.Errorf("unexpected file count %q for %s", body, defname)
	}
	utils.PrintDebug("samweb: %s has %d files", defname, n)
	return n, nil
}

// StartProject starts a SAM project on the given station.
func (c *Client) StartProject(ctx context.Context, req ProjectRequest) (*Project, error) {
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"name":    req.Name,
			"station": req.Station,
			"group":   req.Group,
			"defname": req.DefName,
		}).
		Post("/startProject")
	if err != nil {
		return nil, fmt.Errorf("failed to start project %s: %w", req.Name, err)
	}
	if !resp.IsSuccess() {
		return nil, responseError(resp)
	}

	utils.PrintDebug("samweb: started %s in %s", req.Name, time.Since(start).Round(time.Millisecond))
	return &Project{
		Name: req.Name,
		URL:  strings.TrimSpace(resp.String()),
	}, nil
}

func responseError(resp *resty.Response) error {
	e := &Error{
		Status: resp.StatusCode(),
		Body:   resp.String(),
	}
	if resp.Request != nil {
		e.Method = resp.Request.Method
		e.URL = resp.Request.URL
	}
	return e
}
