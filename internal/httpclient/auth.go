package httpclient

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/lanonasis/onasis-gateway/internal/config"
)

// applyAuth injects credentials into req according to the adapter's auth
// scheme. body is the serialized request body (used by the hmac scheme).
func applyAuth(req *http.Request, auth config.AuthConfig, body []byte, now time.Time) error {
	switch auth.Type {
	case config.AuthNone, "":
		return nil

	case config.AuthBearer, config.AuthOAuth2:
		token := os.Getenv(auth.TokenEnv)
		if token == "" {
			if auth.Type == config.AuthOAuth2 {
				return nil // no access token yet; the upstream will reject
			}
			return fmt.Errorf("auth: %s not set", auth.TokenEnv)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		return nil

	case config.AuthAPIKey:
		key := os.Getenv(auth.KeyEnv)
		if key == "" {
			return fmt.Errorf("auth: %s not set", auth.KeyEnv)
		}
		if auth.QueryParam != "" {
			q := req.URL.Query()
			q.Set(auth.QueryParam, key)
			req.URL.RawQuery = q.Encode()
			return nil
		}
		header := auth.Header
		if header == "" {
			header = "X-API-Key"
		}
		req.Header.Set(header, key)
		return nil

	case config.AuthBasic:
		user := os.Getenv(auth.UserEnv)
		pass := os.Getenv(auth.SecretEnv)
		if user == "" {
			return fmt.Errorf("auth: %s not set", auth.UserEnv)
		}
		req.SetBasicAuth(user, pass)
		return nil

	case config.AuthHMAC:
		user := os.Getenv(auth.UserEnv)
		secret := os.Getenv(auth.SecretEnv)
		if user == "" || secret == "" {
			return fmt.Errorf("auth: hmac credentials not set (%s/%s)", auth.UserEnv, auth.SecretEnv)
		}
		sig := hmacSignature(secret, req.Method, req.URL.Path, body, now)
		prefix := auth.Prefix
		if prefix == "" {
			prefix = "HMAC"
		}
		req.Header.Set("Authorization", fmt.Sprintf("%s %s:%s", prefix, user, sig))
		req.Header.Set("Date", now.UTC().Format(http.TimeFormat))
		return nil
	}

	return fmt.Errorf("auth: unknown scheme %q", auth.Type)
}

// hmacSignature computes the request signature:
// HMAC-SHA1(secret, METHOD || path || unixSeconds || base64(SHA256(body))).
func hmacSignature(secret, method, path string, body []byte, now time.Time) string {
	bodyHash := sha256.Sum256(body)
	payload := method + path + strconv.FormatInt(now.Unix(), 10) +
		base64.StdEncoding.EncodeToString(bodyHash[:])

	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
