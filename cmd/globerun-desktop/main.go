// Command globerun-desktop wraps the viewer in a native window. The server
// binary must already be running (or is started by the launcher script);
// this wrapper only hosts the webview and shuts the server down on close.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	webview "github.com/webview/webview_go"
)

var (
	addr     = flag.String("addr", "localhost:2140", "Address of the globerun server")
	shutdown = flag.Bool("shutdown-on-close", true, "Stop the server when the window closes")
)

func main() {
	flag.Parse()

	// Webview requires main thread
	runtime.LockOSThread()

	// Run from the executable directory to find data/ and .env
	exe, _ := os.Executable()
	if err := os.Chdir(filepath.Dir(exe)); err != nil {
		panic(err)
	}

	w := webview.New(false)
	defer w.Destroy()

	// Block the context menu; the viewer owns right-drag for camera orbit.
	w.Init(`
		window.addEventListener('contextmenu', function(e) {
			e.preventDefault();
		}, true);
	`)

	w.SetTitle("Globerun")
	w.SetSize(1280, 800, webview.HintNone)

	waitForServer(*addr)
	w.Navigate("http://" + *addr)
	w.Run()

	if *shutdown {
		stopServer(*addr)
	}
}

// waitForServer polls /health so the first page load does not race server
// startup.
func waitForServer(addr string) {
	client := &http.Client{Timeout: time.Second}
	for i := 0; i < 20; i++ {
		resp, err := client.Get(fmt.Sprintf("http://%s/health", addr))
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(250 * time.Millisecond)
	}
}

func stopServer(addr string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("http://%s/api/shutdown", addr), http.NoBody)
	resp, err := (&http.Client{Timeout: 2 * time.Second}).Do(req)
	if err != nil {
		fmt.Printf("> API shutdown failed: %v\n", err)
		return
	}
	resp.Body.Close()
	fmt.Println("> Shutdown command sent successfully.")
}
