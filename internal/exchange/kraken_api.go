package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fastjson"
)

var (
	ErrKrakenAPI      = errors.New("kraken api error")
	errMissingAPIKeys = errors.New("api keys are not set, run dodo setup")
)

var krakenParsers fastjson.ParserPool

// krakenAssets maps common tickers to the names Kraken uses.
var krakenAssets = map[string]string{
	"BTC":  "XBT",
	"DOGE": "XDG",
}

// commonAsset reverses krakenAsset for names reported back to the user.
// Legacy four letter names such as XXBT and ZEUR lose their class prefix.
func commonAsset(asset string) string {
	if len(asset) == 4 && (asset[0] == 'X' || asset[0] == 'Z') {
		asset = asset[1:]
	}
	for common, kraken := range krakenAssets {
		if asset == kraken {
			return common
		}
	}
	return asset
}

func krakenAsset(asset string) string {
	asset = strings.ToUpper(asset)
	if mapped, ok := krakenAssets[asset]; ok {
		return mapped
	}
	return asset
}

// call performs a Kraken REST request and hands the "result" member to decode.
// Values passed to decode are only valid for the duration of the callback.
func (k *KrakenClient) call(ctx context.Context, private bool, method string, params url.Values, decode func(result *fastjson.Value) error) error {
	if params == nil {
		params = url.Values{}
	}

	requestCtx, cancel := withTimeout(ctx, k.timeout)
	defer cancel()

	req, err := k.newRequest(requestCtx, private, method, params)
	if err != nil {
		return err
	}

	res, err := k.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("kraken %s: %w", method, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("kraken %s: read body: %w", method, err)
	}
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("kraken %s: unexpected status %d", method, res.StatusCode)
	}

	p := krakenParsers.Get()
	defer krakenParsers.Put(p)

	v, err := p.ParseBytes(body)
	if err != nil {
		return fmt.Errorf("kraken %s: parse response: %w", method, err)
	}
	if apiErrs := v.GetArray("error"); len(apiErrs) > 0 {
		messages := make([]string, 0, len(apiErrs))
		for _, e := range apiErrs {
			messages = append(messages, string(e.GetStringBytes()))
		}
		return fmt.Errorf("%w: %s: %s", ErrKrakenAPI, method, strings.Join(messages, "; "))
	}

	result := v.Get("result")
	if result == nil {
		return fmt.Errorf("kraken %s: response has no result", method)
	}
	return decode(result)
}

func (k *KrakenClient) newRequest(ctx context.Context, private bool, method string, params url.Values) (*http.Request, error) {
	if !private {
		path := "/0/public/" + method
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.baseURL+path+"?"+params.Encode(), nil)
		if err != nil {
			return nil, err
		}
		return req, nil
	}

	if k.creds.Empty() {
		return nil, fmt.Errorf("kraken %s: %w", method, errMissingAPIKeys)
	}
	secret, err := base64.StdEncoding.DecodeString(k.creds.Secret)
	if err != nil {
		return nil, fmt.Errorf("kraken %s: decode api secret: %w", method, err)
	}

	path := "/0/private/" + method
	nonce := strconv.FormatInt(time.Now().UnixNano(), 10)
	params.Set("nonce", nonce)
	body := params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.baseURL+path, strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("API-Key", k.creds.APIKey)
	req.Header.Set("API-Sign", krakenSignature(path, nonce, body, secret))
	return req, nil
}

// krakenSignature is HMAC-SHA512 of path + SHA256(nonce + body), keyed with the decoded secret.
func krakenSignature(path, nonce, body string, secret []byte) string {
	digest := sha256.Sum256([]byte(nonce + body))

	mac := hmac.New(sha512.New, secret)
	mac.Write([]byte(path))
	mac.Write(digest[:])
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// firstMember returns the value of the first key of a JSON object.
// Kraken keys per-pair results by its own pair names, e.g. XXBTZEUR.
func firstMember(v *fastjson.Value) (*fastjson.Value, error) {
	if v == nil {
		return nil, errors.New("missing object")
	}
	obj, err := v.Object()
	if err != nil {
		return nil, err
	}
	var first *fastjson.Value
	obj.Visit(func(_ []byte, member *fastjson.Value) {
		if first == nil {
			first = member
		}
	})
	if first == nil {
		return nil, errors.New("empty result")
	}
	return first, nil
}

func stringAt(v *fastjson.Value, keys ...string) string {
	return string(v.GetStringBytes(keys...))
}
