package explorer

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClient_ConcurrentGet(t *testing.T) {
	// sweep 的 worker 池和 HTTP 接口会同时打同一个 Client，
	// 熔断器的懒初始化在并发下也得安全
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := NewClient()
	ctx := context.Background()

	const numGoroutines = 8
	errs := make(chan error, numGoroutines)
	var wg sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			// 每个 goroutine 一个新源名，逼出 map 的并发写路径
			_, err := client.Get(ctx, fmt.Sprintf("source_%d", n), srv.URL)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
}
