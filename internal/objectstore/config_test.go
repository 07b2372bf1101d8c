package objectstore

import "testing"

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"complete", Config{Endpoint: "s3.local:9000", Bucket: "ioda", AccessKey: "a", SecretKey: "b"}, false},
		{"anonymous", Config{Endpoint: "s3.local:9000", Bucket: "ioda"}, false},
		{"no endpoint", Config{Bucket: "ioda"}, true},
		{"no bucket", Config{Endpoint: "s3.local:9000"}, true},
		{"half keys", Config{Endpoint: "s3.local:9000", Bucket: "ioda", AccessKey: "a"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigKey(t *testing.T) {
	if got := (Config{Prefix: "/tempo/"}).Key("a.nc"); got != "tempo/a.nc" {
		t.Errorf("Key() = %s", got)
	}
	if got := (Config{}).Key("a.nc"); got != "a.nc" {
		t.Errorf("Key() = %s", got)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error for empty config")
	}
}

func TestNewClient(t *testing.T) {
	c, err := New(Config{Endpoint: "127.0.0.1:9000", Bucket: "ioda", AccessKey: "a", SecretKey: "b"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if c.Bucket() != "ioda" {
		t.Errorf("Bucket() = %s", c.Bucket())
	}
}
