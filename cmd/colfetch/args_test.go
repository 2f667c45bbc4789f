package main

import (
	"encoding/base64"
	"errors"
	"flag"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/pithecene-io/colfetch/colfetch"
)

func TestParseArgs_Positionals(t *testing.T) {
	tests := []struct {
		name         string
		args         []string
		wantMode     string
		wantRegion   string
		wantKeyID    string
		wantEndpoint string
	}{
		{
			name:       "region only",
			args:       []string{"flat", "bucket", "data/file.parquet", "us-east-1"},
			wantMode:   modeFlat,
			wantRegion: "us-east-1",
		},
		{
			name:       "with credentials",
			args:       []string{"blocks", "bucket", "k", "us-east-1", "AKID", "SECRET"},
			wantMode:   modeBlocks,
			wantRegion: "us-east-1",
			wantKeyID:  "AKID",
		},
		{
			name:       "region override",
			args:       []string{"footer", "bucket", "k", "us-east-1", "AKID", "SECRET", "eu-west-1"},
			wantMode:   modeFooter,
			wantRegion: "eu-west-1",
			wantKeyID:  "AKID",
		},
		{
			name:         "custom endpoint",
			args:         []string{"async", "bucket", "k", "us-east-1", "AKID", "SECRET", "auto", "http://localhost:9000"},
			wantMode:     modeFlat,
			wantRegion:   "auto",
			wantKeyID:    "AKID",
			wantEndpoint: "http://localhost:9000",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := parseArgs(tt.args, io.Discard)
			if err != nil {
				t.Fatalf("parseArgs failed: %v", err)
			}
			if cfg.mode != tt.wantMode {
				t.Errorf("mode = %q, want %q", cfg.mode, tt.wantMode)
			}
			if cfg.client.Region != tt.wantRegion {
				t.Errorf("region = %q, want %q", cfg.client.Region, tt.wantRegion)
			}
			if cfg.client.AccessKeyID != tt.wantKeyID {
				t.Errorf("access key = %q, want %q", cfg.client.AccessKeyID, tt.wantKeyID)
			}
			if cfg.client.Endpoint != tt.wantEndpoint {
				t.Errorf("endpoint = %q, want %q", cfg.client.Endpoint, tt.wantEndpoint)
			}
			if cfg.client.UsePathStyle != (tt.wantEndpoint != "") {
				t.Errorf("UsePathStyle = %v with endpoint %q", cfg.client.UsePathStyle, tt.wantEndpoint)
			}
		})
	}
}

func TestParseArgs_Flags(t *testing.T) {
	key := make([]byte, 32)
	args := []string{
		"-out", "/tmp/out.bin",
		"-compress", "zstd",
		"-timeout", "30s",
		"-requester-pays",
		"-sse-c-key", base64.StdEncoding.EncodeToString(key),
		"-version-id", "v1",
		"-chunk-size", "4096",
		"-retries", "3",
		"-fail-fast",
		"-max-in-flight", "128",
		"-connect-timeout", "5s",
		"-read-timeout", "1m",
		"flat", "bucket", "/leading/slash", "us-east-1",
	}
	cfg, err := parseArgs(args, io.Discard)
	if err != nil {
		t.Fatalf("parseArgs failed: %v", err)
	}
	if cfg.out != "/tmp/out.bin" || cfg.compress != "zstd" || cfg.timeout != 30*time.Second {
		t.Errorf("output flags = %+v", cfg)
	}
	if !cfg.requesterPays || len(cfg.sseKey) != 32 || cfg.versionID != "v1" {
		t.Errorf("request modifiers = %+v", cfg)
	}
	if cfg.chunkSize != 4096 || cfg.retries != 3 || !cfg.failFast {
		t.Errorf("tunables = %+v", cfg)
	}
	if cfg.maxInFlight != 128 || cfg.client.MaxConnections != 128 {
		t.Errorf("maxInFlight = %d, MaxConnections = %d, want 128 each", cfg.maxInFlight, cfg.client.MaxConnections)
	}
	if cfg.client.ConnectTimeout != 5*time.Second || cfg.client.ReadTimeout != time.Minute {
		t.Errorf("client timeouts = (%s, %s)", cfg.client.ConnectTimeout, cfg.client.ReadTimeout)
	}
	if cfg.key != "leading/slash" {
		t.Errorf("key = %q, want leading slash trimmed", cfg.key)
	}
}

func TestParseArgs_Defaults(t *testing.T) {
	cfg, err := parseArgs([]string{"flat", "b", "k", "us-east-1"}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.chunkSize != colfetch.DefaultChunkSize || cfg.pageSize != colfetch.DefaultPageSize {
		t.Errorf("sizes = (%d, %d)", cfg.chunkSize, cfg.pageSize)
	}
	if cfg.columnWorkers != colfetch.DefaultColumnWorkers || cfg.blockWorkers != colfetch.DefaultBlockWorkers {
		t.Errorf("workers = (%d, %d)", cfg.columnWorkers, cfg.blockWorkers)
	}
	if cfg.compress != "none" || cfg.failFast {
		t.Errorf("compress = %q, failFast = %v", cfg.compress, cfg.failFast)
	}
	if cfg.client.MaxConnections != colfetch.DefaultMaxInFlight {
		t.Errorf("MaxConnections = %d, want %d", cfg.client.MaxConnections, colfetch.DefaultMaxInFlight)
	}
	if cfg.client.ConnectTimeout != defaultConnectTimeout || cfg.client.ReadTimeout != defaultReadTimeout {
		t.Errorf("client timeouts = (%s, %s)", cfg.client.ConnectTimeout, cfg.client.ReadTimeout)
	}
	if got := len(cfg.sessionOptions()); got != 8 {
		t.Errorf("sessionOptions() returned %d options, want 8", got)
	}
}

func TestParseArgs_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"too few", []string{"flat", "b", "k"}, "positional"},
		{"five positionals", []string{"flat", "b", "k", "r", "AKID"}, "positional"},
		{"too many", []string{"flat", "b", "k", "r", "a", "s", "r2", "e", "extra"}, "positional"},
		{"unknown mode", []string{"stream", "b", "k", "r"}, "unknown mode"},
		{"empty key", []string{"flat", "b", "", "r"}, "must not be empty"},
		{"empty region", []string{"flat", "b", "k", ""}, "region"},
		{"half credentials", []string{"flat", "b", "k", "r", "AKID", ""}, "together"},
		{"bad compress", []string{"-compress", "lz4", "flat", "b", "k", "r"}, "compress"},
		{"bad sse key", []string{"-sse-c-key", "%%%", "flat", "b", "k", "r"}, "sse-c-key"},
		{"negative timeout", []string{"-timeout", "-1s", "flat", "b", "k", "r"}, "timeout"},
		{"short sse key", []string{"-sse-c-key", base64.StdEncoding.EncodeToString([]byte("short")), "flat", "b", "k", "r"}, "32 bytes"},
		{"zero chunk size", []string{"-chunk-size", "0", "flat", "b", "k", "r"}, "chunk size"},
		{"chunk size above u32", []string{"-chunk-size", "4294967296", "flat", "b", "k", "r"}, "chunk size"},
		{"zero page size", []string{"-page-size", "0", "flat", "b", "k", "r"}, "page size"},
		{"negative max in flight", []string{"-max-in-flight", "-3", "flat", "b", "k", "r"}, "in-flight"},
		{"zero column workers", []string{"-column-workers", "0", "blocks", "b", "k", "r"}, "column workers"},
		{"negative block workers", []string{"-block-workers", "-1", "blocks", "b", "k", "r"}, "block workers"},
		{"zero flat workers", []string{"-flat-workers", "0", "flat", "b", "k", "r"}, "flat workers"},
		{"negative retries", []string{"-retries", "-1", "flat", "b", "k", "r"}, "retries"},
		{"negative connect timeout", []string{"-connect-timeout", "-1s", "flat", "b", "k", "r"}, "timeouts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseArgs(tt.args, io.Discard)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %q, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseArgs_Help(t *testing.T) {
	var out strings.Builder
	_, err := parseArgs([]string{"-h"}, &out)
	if !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("err = %v, want flag.ErrHelp", err)
	}
	if !strings.Contains(out.String(), "usage: colfetch") {
		t.Errorf("usage output = %q", out.String())
	}
}
