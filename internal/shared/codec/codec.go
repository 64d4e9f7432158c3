// Package codec encodes a benchmark Config into a compact, URL-safe string
// for share links, and decodes it back.
//
// The plain form is JSON under unpadded base64url. Decoding also accepts
// padded and standard-alphabet base64, so links produced by a browser's
// btoa keep working. The compact form prefixes "~" and zstd-compresses the
// JSON first.
package codec

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/zstd"

	"github.com/GriffinCanCode/jsbench/internal/shared/types"
)

const (
	compactPrefix  = "~"
	legacyQueryKey = "config"
)

// maxDecodedSize bounds decompressed payloads
const maxDecodedSize = 8 << 20

var json = sonic.ConfigStd

var (
	encoderOnce sync.Once
	encoder     *zstd.Encoder
	decoderOnce sync.Once
	decoder     *zstd.Decoder
)

func zstdEncoder() *zstd.Encoder {
	encoderOnce.Do(func() {
		encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	})
	return encoder
}

func zstdDecoder() *zstd.Decoder {
	decoderOnce.Do(func() {
		decoder, _ = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecodedSize))
	})
	return decoder
}

// Serialize encodes cfg as base64url JSON
func Serialize(cfg types.Config) (string, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// SerializeCompact encodes cfg as "~" followed by base64url zstd-compressed JSON
func SerializeCompact(cfg types.Config) (string, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	compressed := zstdEncoder().EncodeAll(data, nil)
	return compactPrefix + base64.RawURLEncoding.EncodeToString(compressed), nil
}

// Deserialize decodes either form. Empty input yields a nil Config and no
// error; malformed input yields a DeserializeError.
func Deserialize(encoded string) (*types.Config, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, nil
	}

	compact := strings.HasPrefix(encoded, compactPrefix)
	data, err := decodeBase64(strings.TrimPrefix(encoded, compactPrefix))
	if err != nil {
		return nil, types.NewDeserializeError(err)
	}

	if compact {
		data, err = zstdDecoder().DecodeAll(data, nil)
		if err != nil {
			return nil, types.NewDeserializeError(err)
		}
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, types.NewDeserializeError(errors.New("payload is not a JSON object"))
	}

	var cfg types.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, types.NewDeserializeError(err)
	}
	return &cfg, nil
}

// decodeBase64 accepts url-safe or standard alphabets, padded or not. A "+"
// turned into a space by query decoding is restored.
func decodeBase64(s string) ([]byte, error) {
	s = strings.ReplaceAll(s, " ", "+")
	if strings.ContainsAny(s, "-_") {
		return base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(strings.TrimRight(s, "="))
	}
	return base64.StdEncoding.WithPadding(base64.NoPadding).DecodeString(strings.TrimRight(s, "="))
}

// ShareURL returns base with the encoded config as its fragment:
// <base>#<encoded>. An existing fragment on base is replaced.
func ShareURL(base string, cfg types.Config, compact bool) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse share base: %w", err)
	}

	encode := Serialize
	if compact {
		encode = SerializeCompact
	}
	encoded, err := encode(cfg)
	if err != nil {
		return "", err
	}

	u.Fragment = encoded
	u.RawFragment = ""
	return u.String(), nil
}

// FromURL extracts and decodes the config carried in a share link's
// fragment. A link without a fragment carries no preset and yields nil, nil.
// Links minted with a "config" query parameter are still read.
func FromURL(link string) (*types.Config, error) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return nil, types.NewDeserializeError(err)
	}
	if u.Fragment != "" {
		return Deserialize(u.Fragment)
	}
	if encoded := u.Query().Get(legacyQueryKey); encoded != "" {
		return Deserialize(encoded)
	}
	return nil, nil
}
