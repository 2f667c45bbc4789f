package s3

import (
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func TestClientConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ClientConfig
		wantErr bool
	}{
		{"region only", ClientConfig{Region: "us-east-1"}, false},
		{"static keys", ClientConfig{Region: "us-east-1", AccessKeyID: "a", SecretAccessKey: "s"}, false},
		{"missing region", ClientConfig{}, true},
		{"key without secret", ClientConfig{Region: "us-east-1", AccessKeyID: "a"}, true},
		{"secret without key", ClientConfig{Region: "us-east-1", SecretAccessKey: "s"}, true},
		{"negative retries", ClientConfig{Region: "us-east-1", RetryMaxAttempts: -1}, true},
		{"negative connections", ClientConfig{Region: "us-east-1", MaxConnections: -1}, true},
		{"negative connect timeout", ClientConfig{Region: "us-east-1", ConnectTimeout: -time.Second}, true},
		{"negative read timeout", ClientConfig{Region: "us-east-1", ReadTimeout: -time.Second}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestClientConfig_CredentialsProvider(t *testing.T) {
	if p := (ClientConfig{Region: "r"}).credentialsProvider(); p != nil {
		t.Errorf("default chain expected, got %T", p)
	}

	p := ClientConfig{Region: "r", AccessKeyID: "AKID", SecretAccessKey: "SECRET", SessionToken: "TOKEN"}.credentialsProvider()
	creds, err := p.Retrieve(t.Context())
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if creds.AccessKeyID != "AKID" || creds.SecretAccessKey != "SECRET" || creds.SessionToken != "TOKEN" {
		t.Errorf("credentials = %+v", creds)
	}

	override := credentials.NewStaticCredentialsProvider("other", "other", "")
	p = ClientConfig{Region: "r", AccessKeyID: "AKID", SecretAccessKey: "SECRET", Credentials: override}.credentialsProvider()
	creds, err = p.Retrieve(t.Context())
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if creds.AccessKeyID != "other" {
		t.Error("explicit provider should win over static keys")
	}
}

func TestClientConfig_ClientOptions(t *testing.T) {
	var o s3.Options
	for _, fn := range (ClientConfig{Region: "r", Endpoint: "http://localhost:9000", UsePathStyle: true}).clientOptions() {
		fn(&o)
	}
	if o.BaseEndpoint == nil || *o.BaseEndpoint != "http://localhost:9000" {
		t.Errorf("BaseEndpoint = %v", o.BaseEndpoint)
	}
	if !o.UsePathStyle {
		t.Error("UsePathStyle not applied")
	}

	if n := len((ClientConfig{Region: "r"}).clientOptions()); n != 0 {
		t.Errorf("got %d options for a default config", n)
	}
}

func TestClientConfig_HTTPClient(t *testing.T) {
	cfg := ClientConfig{
		Region:         "r",
		MaxConnections: 64,
		ConnectTimeout: 100 * time.Second,
		ReadTimeout:    90 * time.Second,
	}
	client := cfg.httpClient()

	tr := client.GetTransport()
	if tr.MaxIdleConnsPerHost != 64 || tr.MaxConnsPerHost != 64 || tr.MaxIdleConns != 64 {
		t.Errorf("transport pool = (idle %d, idle/host %d, conns/host %d), want 64 each",
			tr.MaxIdleConns, tr.MaxIdleConnsPerHost, tr.MaxConnsPerHost)
	}
	if d := client.GetDialer(); d.Timeout != 100*time.Second {
		t.Errorf("dial timeout = %s, want 100s", d.Timeout)
	}
	if got := client.GetTimeout(); got != 90*time.Second {
		t.Errorf("client timeout = %s, want 90s", got)
	}

	def := (ClientConfig{Region: "r"}).httpClient()
	if def.GetTimeout() != 0 {
		t.Errorf("default client timeout = %s, want none", def.GetTimeout())
	}
	if def.GetTransport().MaxConnsPerHost != 0 {
		t.Error("default transport should not cap connections")
	}
}

func TestNewClient_RejectsInvalid(t *testing.T) {
	if _, err := NewClient(t.Context(), ClientConfig{}); err == nil {
		t.Error("expected error for missing region")
	}
}
