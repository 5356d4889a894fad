package transport

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/klvr/charger-tools/pkg/models"
)

// deviceFor turns an httptest server URL into a descriptor.
func deviceFor(t *testing.T, rawURL string) models.DeviceDescriptor {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatal(err)
	}
	return models.DeviceDescriptor{Host: u.Hostname(), Port: port, Scheme: u.Scheme}
}

func TestContentLengthExact(t *testing.T) {
	sizes := []int{0, 4, 300 * 1024}

	for _, size := range sizes {
		var gotLength int64 = -1
		var gotBytes int
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotLength = r.ContentLength
			body := new(bytes.Buffer)
			body.ReadFrom(r.Body)
			gotBytes = body.Len()
		}))

		payload := bytes.Repeat([]byte{0xAB}, size)
		client := NewClient(5*time.Second, nil)
		_, err := client.Do(context.Background(), deviceFor(t, srv.URL), http.MethodPost, "/api/v2/device/firmware_charger", payload, nil)
		srv.Close()
		if err != nil {
			t.Fatalf("size %d: %v", size, err)
		}
		if gotLength != int64(size) {
			t.Errorf("size %d: Content-Length = %d, want exact", size, gotLength)
		}
		if gotBytes != size {
			t.Errorf("size %d: body delivered %d bytes", size, gotBytes)
		}
	}
}

func TestStatusCodePassthrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		w.Write([]byte("too big"))
	}))
	defer srv.Close()

	client := NewClient(5*time.Second, nil)
	resp, err := client.Do(context.Background(), deviceFor(t, srv.URL), http.MethodPost, "/api/v2/device/firmware_rear", []byte{1, 2, 3}, nil)
	if err != nil {
		t.Fatalf("a non-2xx status is not a transport error: %v", err)
	}
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", resp.StatusCode)
	}
	if resp.Body != "too big" {
		t.Errorf("body = %q", resp.Body)
	}
}

func TestTimeoutYieldsTransportError(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	client := NewClient(100*time.Millisecond, nil)
	_, err := client.Do(context.Background(), deviceFor(t, srv.URL), http.MethodGet, PathDeviceInfo, nil, nil)
	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("got %v, want TransportError", err)
	}
}

func TestConnectionRefusedYieldsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	device := deviceFor(t, srv.URL)
	srv.Close()

	client := NewClient(time.Second, nil)
	_, err := client.Do(context.Background(), device, http.MethodGet, PathDeviceInfo, nil, nil)
	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("got %v, want TransportError", err)
	}
}

func TestParseDeviceInfoNameFallback(t *testing.T) {
	info, err := ParseDeviceInfo(`{"deviceName":"KLVR Charger Pro","firmwareVersion":"1.7.0"}`)
	if err != nil {
		t.Fatal(err)
	}
	if info.DisplayName() != "KLVR Charger Pro" {
		t.Errorf("DisplayName = %q", info.DisplayName())
	}
	if info.Identifier() != models.UnknownValue {
		t.Errorf("Identifier = %q, want %q", info.Identifier(), models.UnknownValue)
	}
}
