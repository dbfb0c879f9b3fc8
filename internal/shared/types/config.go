package types

// CommonConf holds behavior shared by every component.
type CommonConf struct {
	ListenAddr string `ini:"listen_addr"` // local API listen address, e.g. "127.0.0.1:7857"
}

// I2PDConf describes the local i2pd router process and its forward proxies.
type I2PDConf struct {
	Executable     string `ini:"executable"`       // path to the i2pd binary
	DataDir        string `ini:"data_dir"`         // --datadir passed to i2pd
	HTTPProxyAddr  string `ini:"http_proxy_addr"`  // plain HTTP forward proxy
	HTTPSProxyAddr string `ini:"https_proxy_addr"` // CONNECT/TLS forward proxy
}

// OutproxyConf tunes the discovery/benchmark/selection pipeline.
type OutproxyConf struct {
	DirectoryURL        string  `ini:"directory_url"`         // primary outproxy directory page
	ExtraDirectoryURL   string  `ini:"extra_directory_url"`   // optional secondary directory page
	TestURL             string  `ini:"test_url"`              // fixed-size reference payload
	ProbeTimeoutSeconds int     `ini:"probe_timeout_seconds"` // per-probe deadline
	RouteTimeoutSeconds int     `ini:"route_timeout_seconds"` // per-request deadline
	FetchTimeoutSeconds int     `ini:"fetch_timeout_seconds"` // directory fetch deadline
	RetestIntervalSecs  int     `ini:"retest_interval_seconds"`
	TopCandidates       int     `ini:"top_candidates"`
	I2PDefaultSpeed     float64 `ini:"i2p_default_speed"`   // placeholder bytes/sec for overlay-only proxies
	I2PDefaultLatency   float64 `ini:"i2p_default_latency"` // placeholder latency ms for overlay-only proxies
	StoragePath         string  `ini:"storage_path"`        // known-records file, empty disables persistence
}

// LogConf contains logging specific configuration
type LogConf struct {
	Level string `ini:"level"`
}

// Config is the unified configuration for the i2prelay daemon.
type Config struct {
	CommonConf   `ini:"common"`
	I2PDConf     `ini:"i2pd"`
	OutproxyConf `ini:"outproxy"`
	LogConf      `ini:"log"`
}

// ApplyDefaults fills zero-valued fields so the pipeline behaves sensibly
// with a minimal ini file.
func (c *Config) ApplyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = "127.0.0.1:7857"
	}
	if c.Executable == "" {
		c.Executable = "i2pd"
	}
	if c.HTTPProxyAddr == "" {
		c.HTTPProxyAddr = "127.0.0.1:4444"
	}
	if c.HTTPSProxyAddr == "" {
		c.HTTPSProxyAddr = "127.0.0.1:4447"
	}
	if c.DirectoryURL == "" {
		c.DirectoryURL = "http://outproxys.i2p/"
	}
	if c.TestURL == "" {
		c.TestURL = "http://httpbin.org/bytes/10240"
	}
	if c.ProbeTimeoutSeconds <= 0 {
		c.ProbeTimeoutSeconds = 10
	}
	if c.RouteTimeoutSeconds <= 0 {
		c.RouteTimeoutSeconds = 60
	}
	if c.FetchTimeoutSeconds <= 0 {
		c.FetchTimeoutSeconds = 30
	}
	if c.RetestIntervalSecs <= 0 {
		c.RetestIntervalSecs = 300
	}
	if c.TopCandidates <= 0 {
		c.TopCandidates = 5
	}
	if c.I2PDefaultSpeed <= 0 {
		c.I2PDefaultSpeed = 1024 * 50 // assume 50 KB/s when an overlay proxy cannot be probed
	}
	if c.I2PDefaultLatency <= 0 {
		c.I2PDefaultLatency = 200
	}
}
