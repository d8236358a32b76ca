package metrics

import (
	"fmt"
	"net/http"
	"runtime"
	"time"
)

// CollectRuntime samples Go runtime statistics into gauges every interval.
// The sampling goroutine runs for the life of the process.
func (r *Registry) CollectRuntime(prefix string, interval time.Duration) {
	heap := r.Gauge(prefix+"_heap_bytes", "Heap bytes in use")
	goroutines := r.Gauge(prefix+"_goroutines", "Number of goroutines")
	gcTotal := r.Gauge(prefix+"_gc_total", "Completed GC cycles")

	go func() {
		var ms runtime.MemStats
		for {
			runtime.ReadMemStats(&ms)
			heap.Set(int64(ms.HeapAlloc))
			goroutines.Set(int64(runtime.NumGoroutine()))
			gcTotal.Set(int64(ms.NumGC))
			time.Sleep(interval)
		}
	}()
}

// ServeAsync serves /metrics on its own port in a background goroutine,
// for workers that have no HTTP server of their own.
func (r *Registry) ServeAsync(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok\n"))
	})
	go func() {
		if err := http.ListenAndServe(fmt.Sprintf(":%d", port), mux); err != nil {
			fmt.Printf("metrics server error on port %d: %v\n", port, err)
		}
	}()
}
