// Beachfront - Geospatial Imagery Analysis Platform
// Copyright 2026 VeniceGeo
// SPDX-License-Identifier: Apache-2.0
// https://github.com/venicegeo/bf-api

// Package geoserver provisions the GeoServer rendering stack for
// detections and proxies WMS tile requests to it.
package geoserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/venicegeo/bf-api/internal/config"
	"github.com/venicegeo/bf-api/internal/logging"
	"github.com/venicegeo/bf-api/internal/metrics"
)

const (
	workspaceID       = "beachfront"
	datastoreID       = "postgres"
	detectionsLayerID = "all_detections"
	detectionsStyleID = "detections"
)

var (
	// ErrUnreachable indicates a connection-level failure reaching
	// GeoServer.
	ErrUnreachable = errors.New("geoserver: server is unreachable")

	// ErrInstall indicates a provisioning step failed.
	ErrInstall = errors.New("geoserver: installation failed")
)

// Client provisions and queries a GeoServer instance.
type Client struct {
	cfg        *config.GeoServerConfig
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a GeoServer client from configuration.
func NewClient(cfg *config.GeoServerConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 24 * time.Second
	}
	return &Client{
		cfg:        cfg,
		baseURL:    cfg.BaseURL(),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SetBaseURL overrides the server location. Used by tests.
func (c *Client) SetBaseURL(rawURL string) {
	c.baseURL = strings.TrimSuffix(rawURL, "/")
}

// WMSURL returns the WMS endpoint tile requests are forwarded to.
func (c *Client) WMSURL() string {
	return c.baseURL + "/wms"
}

// ProxyWMSTile forwards a WMS request and streams the tile back to the
// caller without buffering the whole image.
func (c *Client) ProxyWMSTile(w http.ResponseWriter, r *http.Request) error {
	target := c.WMSURL() + "?" + r.URL.RawQuery

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create WMS request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.RecordUpstreamRequest("geoserver", "wms_tile", time.Since(start), err)
	if err != nil {
		logging.Err(err).Msg("Connection to GeoServer failed")
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		logging.Error().Int("status", resp.StatusCode).Str("url", target).Msg("GeoServer rejected WMS request")
		return fmt.Errorf("geoserver: WMS returned HTTP %d", resp.StatusCode)
	}

	if contentType := resp.Header.Get("Content-Type"); contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("failed to stream WMS tile: %w", err)
	}
	return nil
}

// InstallIfNeeded provisions the workspace, datastore, detections
// layer, and style, skipping components that already exist. A second
// run against a provisioned server issues reads only.
func (c *Client) InstallIfNeeded(ctx context.Context) error {
	if c.cfg.SkipInstall {
		logging.Info().Msg("Skipping GeoServer provisioning")
		return nil
	}

	installNeeded := false

	exists, err := c.exists(ctx, "/rest/workspaces/"+workspaceID)
	if err != nil {
		return err
	}
	if !exists {
		installNeeded = true
		if err := c.installWorkspace(ctx); err != nil {
			return err
		}
	}

	exists, err = c.exists(ctx, "/rest/workspaces/"+workspaceID+"/datastores/"+datastoreID)
	if err != nil {
		return err
	}
	if !exists {
		installNeeded = true
		if err := c.installDatastore(ctx); err != nil {
			return err
		}
	}

	exists, err = c.exists(ctx, "/rest/layers/"+detectionsLayerID)
	if err != nil {
		return err
	}
	if !exists {
		installNeeded = true
		if err := c.installLayer(ctx); err != nil {
			return err
		}
	}

	exists, err = c.exists(ctx, "/rest/styles/"+detectionsStyleID)
	if err != nil {
		return err
	}
	if !exists {
		installNeeded = true
		if err := c.installStyle(ctx); err != nil {
			return err
		}
	}

	if installNeeded {
		logging.Info().Msg("GeoServer installation complete")
	} else {
		logging.Info().Msg("GeoServer components exist and will not be reinstalled")
	}
	return nil
}

func (c *Client) installWorkspace(ctx context.Context) error {
	logging.Info().Str("workspace", workspaceID).Msg("Installing GeoServer workspace")
	payload := fmt.Sprintf("<workspace><name>%s</name></workspace>", workspaceID)
	return c.post(ctx, "/rest/workspaces", "application/xml", payload, "install_workspace")
}

func (c *Client) installDatastore(ctx context.Context) error {
	logging.Info().Str("datastore", datastoreID).Msg("Installing GeoServer datastore")

	dbURI, err := url.Parse(c.cfg.DatastoreURI)
	if err != nil {
		return fmt.Errorf("%w: malformed datastore URI: %v", ErrInstall, err)
	}
	password, _ := dbURI.User.Password()

	payload := fmt.Sprintf(`<dataStore>
	<name>%s</name>
	<type>PostGIS</type>
	<connectionParameters>
		<entry key="database">%s</entry>
		<entry key="host">%s</entry>
		<entry key="port">%s</entry>
		<entry key="passwd">%s</entry>
		<entry key="dbtype">postgis</entry>
		<entry key="user">%s</entry>
	</connectionParameters>
</dataStore>`,
		datastoreID,
		strings.Trim(dbURI.Path, "/"),
		dbURI.Hostname(),
		dbURI.Port(),
		password,
		dbURI.User.Username(),
	)
	return c.post(ctx, "/rest/workspaces/"+workspaceID+"/datastores", "application/xml", payload, "install_datastore")
}

func (c *Client) installLayer(ctx context.Context) error {
	logging.Info().Str("layer", detectionsLayerID).Msg("Installing GeoServer detections layer")

	// Virtual table filtered by job, product line, or scene; the
	// regexp validators keep the substitution parameters from becoming
	// SQL injection vectors.
	payload := fmt.Sprintf(`<featureType>
	<name>%[1]s</name>
	<title>All Detections</title>
	<srs>EPSG:4326</srs>
	<nativeBoundingBox>
		<minx>-180.0</minx>
		<maxx>180.0</maxx>
		<miny>-90.0</miny>
		<maxy>90.0</maxy>
	</nativeBoundingBox>
	<metadata>
		<entry key="JDBC_VIRTUAL_TABLE">
			<virtualTable>
				<name>%[1]s</name>
				<sql>
					SELECT * FROM geoserver
					 WHERE ('%%jobid%%' = '' AND '%%productlineid%%' = '' AND '%%sceneid%%' = '')
						OR (job_id = '%%jobid%%')
						OR (productline_id = '%%productlineid%%')
						OR (scene_id = '%%sceneid%%')
				</sql>
				<escapeSql>false</escapeSql>
				<keyColumn>job_id</keyColumn>
				<geometry>
					<name>geometry</name>
					<type>Geometry</type>
					<srid>4326</srid>
				</geometry>
				<parameter>
					<name>jobid</name>
					<regexpValidator>^(%%|[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12})$</regexpValidator>
				</parameter>
				<parameter>
					<name>productlineid</name>
					<regexpValidator>^[a-z]+$</regexpValidator>
				</parameter>
				<parameter>
					<name>sceneid</name>
					<regexpValidator>^\w+:\w+$</regexpValidator>
				</parameter>
			</virtualTable>
		</entry>
	</metadata>
</featureType>`, detectionsLayerID)
	return c.post(ctx, "/rest/workspaces/"+workspaceID+"/datastores/"+datastoreID+"/featuretypes", "application/xml", payload, "install_layer")
}

func (c *Client) installStyle(ctx context.Context) error {
	logging.Info().Str("style", detectionsStyleID).Msg("Installing GeoServer detections style")

	sld := `<StyledLayerDescriptor version="1.0.0" xmlns="http://www.opengis.net/sld">
  <NamedLayer>
    <UserStyle>
      <FeatureTypeStyle>
        <Rule>
          <LineSymbolizer>
            <Stroke>
              <CssParameter name="stroke">#FF00FF</CssParameter>
            </Stroke>
          </LineSymbolizer>
        </Rule>
      </FeatureTypeStyle>
    </UserStyle>
  </NamedLayer>
</StyledLayerDescriptor>`
	if err := c.post(ctx, "/rest/styles?name="+detectionsStyleID, "application/vnd.ogc.sld+xml", sld, "install_style"); err != nil {
		return err
	}

	// Bind the style to the detections layer as its default
	layer := fmt.Sprintf("<layer><defaultStyle><name>%s</name></defaultStyle></layer>", detectionsStyleID)
	return c.put(ctx, "/rest/layers/"+detectionsLayerID, "application/xml", layer, "bind_style")
}

func (c *Client) exists(ctx context.Context, path string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create existence check: %w", err)
	}
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.RecordUpstreamRequest("geoserver", "exists_check", time.Since(start), err)
	if err != nil {
		logging.Err(err).Str("path", path).Msg("Cannot communicate with GeoServer")
		return false, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK, nil
}

func (c *Client) post(ctx context.Context, path, contentType, payload, operation string) error {
	return c.write(ctx, http.MethodPost, path, contentType, payload, operation)
}

func (c *Client) put(ctx context.Context, path, contentType, payload, operation string) error {
	return c.write(ctx, http.MethodPut, path, contentType, payload, operation)
}

func (c *Client) write(ctx context.Context, method, path, contentType, payload, operation string) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, strings.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", operation, err)
	}
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.RecordUpstreamRequest("geoserver", operation, time.Since(start), err)
	if err != nil {
		logging.Err(err).Str("operation", operation).Msg("Cannot communicate with GeoServer")
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		logging.Error().Int("status", resp.StatusCode).Str("operation", operation).Str("response", string(body)).Msg("GeoServer rejected provisioning request")
		return fmt.Errorf("%w: %s returned HTTP %d", ErrInstall, operation, resp.StatusCode)
	}
	return nil
}
