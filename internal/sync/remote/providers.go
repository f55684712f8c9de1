package remote

import (
	"fmt"
	"net/url"
	"strings"
)

// Object storage providers.
const (
	ProviderAWS   = "aws"
	ProviderR2    = "r2"
	ProviderMinIO = "minio"
)

// Standard AWS S3 regional endpoints.
var awsEndpoints = map[string]string{
	"us-east-1":      "s3.amazonaws.com",
	"us-east-2":      "s3.us-east-2.amazonaws.com",
	"us-west-1":      "s3.us-west-1.amazonaws.com",
	"us-west-2":      "s3.us-west-2.amazonaws.com",
	"eu-west-1":      "s3.eu-west-1.amazonaws.com",
	"eu-west-2":      "s3.eu-west-2.amazonaws.com",
	"eu-central-1":   "s3.eu-central-1.amazonaws.com",
	"ap-northeast-1": "s3.ap-northeast-1.amazonaws.com",
	"ap-northeast-2": "s3.ap-northeast-2.amazonaws.com",
	"ap-northeast-3": "s3.ap-northeast-3.amazonaws.com",
	"ap-southeast-1": "s3.ap-southeast-1.amazonaws.com",
	"ap-southeast-2": "s3.ap-southeast-2.amazonaws.com",
	"ca-central-1":   "s3.ca-central-1.amazonaws.com",
	"sa-east-1":      "s3.sa-east-1.amazonaws.com",
}

// ObjectStoreConfig holds object storage configuration.
type ObjectStoreConfig struct {
	Provider  string // aws, r2 or minio (default: minio)
	Endpoint  string // Host or URL; required for minio, ignored for aws and r2
	Region    string // AWS region (default: us-east-1)
	Bucket    string
	AccessKey string
	SecretKey string
	AccountID string // Cloudflare account id, r2 only
	UseSSL    bool
	Prefix    string // Object key prefix (default: "user_data/")
}

// endpointSpec is a resolved connection target.
type endpointSpec struct {
	Host      string
	Secure    bool
	Region    string
	PathStyle bool
}

// resolveEndpoint applies the provider rules. AWS and R2 use virtual-host
// style URLs; MinIO needs path-style.
func resolveEndpoint(cfg ObjectStoreConfig) (endpointSpec, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderAWS:
		region := cfg.Region
		if region == "" {
			region = "us-east-1"
		}
		host, ok := awsEndpoints[region]
		if !ok {
			host = fmt.Sprintf("s3.%s.amazonaws.com", region)
		}
		return endpointSpec{Host: host, Secure: true, Region: region}, nil

	case ProviderR2:
		if !IsValidR2AccountID(cfg.AccountID) {
			return endpointSpec{}, fmt.Errorf("invalid R2 account id %q", cfg.AccountID)
		}
		return endpointSpec{Host: R2EndpointForAccount(cfg.AccountID), Secure: true, Region: "auto"}, nil

	case ProviderMinIO, "":
		host, secure, err := parseEndpoint(cfg.Endpoint, cfg.UseSSL)
		if err != nil {
			return endpointSpec{}, err
		}
		region := cfg.Region
		if region == "" {
			// MinIO ignores regions but signing needs one.
			region = "us-east-1"
		}
		return endpointSpec{Host: host, Secure: secure, Region: region, PathStyle: true}, nil

	default:
		return endpointSpec{}, fmt.Errorf("unknown object storage provider %q", cfg.Provider)
	}
}

// parseEndpoint strips the scheme and trailing slash from endpoint. An
// explicit scheme overrides useSSL.
func parseEndpoint(endpoint string, useSSL bool) (string, bool, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", false, fmt.Errorf("endpoint cannot be empty")
	}

	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return "", false, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
		}
		if u.Host == "" {
			return "", false, fmt.Errorf("invalid endpoint %q: missing host", endpoint)
		}
		return u.Host, u.Scheme == "https", nil
	}

	return strings.TrimSuffix(endpoint, "/"), useSSL, nil
}

// R2EndpointForAccount returns the R2 S3 API host for an account.
func R2EndpointForAccount(accountID string) string {
	return fmt.Sprintf("%s.r2.cloudflarestorage.com", accountID)
}

// IsValidR2AccountID checks for the 32 hex character account id format.
func IsValidR2AccountID(accountID string) bool {
	if len(accountID) != 32 {
		return false
	}
	for _, c := range accountID {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return false
		}
	}
	return true
}

// IsSupportedAWSRegion reports whether region has a known endpoint.
func IsSupportedAWSRegion(region string) bool {
	_, ok := awsEndpoints[region]
	return ok
}
