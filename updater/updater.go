// Package updater forwards completed uploads to an HTTP update endpoint,
// the way gokrazy devices receive new images: the upload is PUT to
// upload/<name> and the endpoint answers with the hex checksum of what it
// received.
package updater

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gokrazy/ghostfat/humanize"
	"github.com/klauspost/compress/zstd"
)

var ErrUpdateHandlerNotImplemented = errors.New("update handler not implemented")

type countingWriter int64

func (cw *countingWriter) Write(p []byte) (n int, err error) {
	*cw += countingWriter(len(p))
	return len(p), nil
}

type Target struct {
	BaseURL    string
	HTTPClient *http.Client

	supports []string
}

// NewTarget queries the features of the endpoint at baseURL, which must
// end in a slash.
func NewTarget(ctx context.Context, baseURL string, httpClient *http.Client) (*Target, error) {
	supports, err := targetSupports(ctx, baseURL, httpClient)
	if err != nil {
		return nil, err
	}
	return &Target{
		BaseURL:    baseURL,
		HTTPClient: httpClient,
		supports:   supports,
	}, nil
}

func (t *Target) Supports(feature string) bool {
	for _, f := range t.supports {
		if f == feature {
			return true
		}
	}
	return false
}

// Result describes a forwarded upload.
type Result struct {
	// Bytes is the number of bytes sent, after compression.
	Bytes    int64
	Duration time.Duration
}

func (r Result) String() string {
	var bps uint64
	if s := r.Duration.Seconds(); s > 0 {
		bps = uint64(float64(r.Bytes) / s)
	}
	return fmt.Sprintf("%s in %v, i.e. %s", humanize.Bytes(uint64(r.Bytes)), r.Duration.Round(time.Millisecond), humanize.BPS(bps))
}

// StreamTo sends r to the endpoint as upload/<name> and verifies the
// checksum the endpoint returns.
func (t *Target) StreamTo(ctx context.Context, name string, r io.Reader) (Result, error) {
	start := time.Now()
	crc := t.Supports("crc32")
	useZstd := t.Supports("zstd")
	var hash hash.Hash
	if crc {
		hash = crc32.NewIEEE()
	} else {
		hash = sha256.New()
	}
	var cw countingWriter
	rd := io.TeeReader(r, hash)
	// wait returns once hash has seen all of r.
	wait := func() {}
	if useZstd {
		piper, pipew := io.Pipe()
		defer piper.Close()
		wr, err := zstd.NewWriter(pipew, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			return Result{}, err
		}
		done := make(chan struct{})
		wait = func() {
			piper.Close()
			<-done
		}
		go func() {
			defer close(done)
			defer wr.Close()
			if _, err := io.Copy(wr, io.TeeReader(r, hash)); err != nil {
				pipew.CloseWithError(err)
				return
			}
			pipew.CloseWithError(wr.Close())
		}()
		rd = piper
	}
	req, err := http.NewRequestWithContext(ctx,
		http.MethodPut,
		t.BaseURL+"upload/"+name,
		io.TeeReader(rd, &cw))
	if err != nil {
		return Result{}, err
	}
	if crc {
		req.Header.Set("X-Ghostfat-Upload-Hash", "crc32")
	}
	if useZstd {
		req.Header.Set("Content-Encoding", "zstd")
	}
	resp, err := t.HTTPClient.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()
	if got, want := resp.StatusCode, http.StatusOK; got != want {
		body, _ := io.ReadAll(resp.Body)
		return Result{}, fmt.Errorf("unexpected HTTP status code: got %d, want %d (body %q)", got, want, string(body))
	}
	remoteHash, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, err
	}
	if bytes.HasPrefix(remoteHash, []byte("<!DOCTYPE html>")) {
		return Result{}, ErrUpdateHandlerNotImplemented
	}
	remoteHash = bytes.TrimSpace(remoteHash)
	decoded := make([]byte, hex.DecodedLen(len(remoteHash)))
	n, err := hex.Decode(decoded, remoteHash)
	if err != nil {
		return Result{}, err
	}
	wait()
	if got, want := decoded[:n], hash.Sum(nil); !bytes.Equal(got, want) {
		return Result{}, fmt.Errorf("unexpected checksum: got %x, want %x", got, want)
	}
	res := Result{Bytes: int64(cw), Duration: time.Since(start)}
	if useZstd {
		log.Printf("(using zstd) %s", res)
	}
	return res, nil
}

// Activate asks the endpoint to switch to the most recent upload, e.g. by
// flashing and resetting the board behind it.
func (t *Target) Activate(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL+"upload/activate", nil)
	if err != nil {
		return err
	}
	resp, err := t.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if got, want := resp.StatusCode, http.StatusOK; got != want {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected HTTP status code: got %d, want %d (body %q)", got, want, string(body))
	}
	return nil
}

func targetSupports(ctx context.Context, baseURL string, client *http.Client) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"upload/features", nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		// Endpoint does not have a features handler, so no features
		// are supported.
		return nil, nil
	}
	if got, want := resp.StatusCode, http.StatusOK; got != want {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected HTTP status code: got %d, want %d (body %q)", got, want, string(body))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return strings.Split(strings.TrimSpace(string(body)), ","), nil
}
