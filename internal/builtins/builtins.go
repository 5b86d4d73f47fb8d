// ABOUTME: Assembles the node's default capability handlers.
// ABOUTME: Capability names advertised to the hive are derived from the same list.

package builtins

import (
	"net/http"

	"github.com/2389/hivenode/internal/tools"
)

// Options configures the default handlers.
type Options struct {
	N8NURL     string
	PythonPath string
	OutputDir  string
	HTTPClient *http.Client
}

// All returns every default handler in advertisement order.
func All(opts Options) []tools.Tool {
	return []tools.Tool{
		NewBarkTTS(opts.PythonPath, opts.OutputDir),
		NewN8NTrigger(opts.N8NURL, opts.HTTPClient),
		NewLocalExec(),
		NewFilesystem(),
	}
}

// Capabilities lists the capability names the node announces to the hive.
var Capabilities = []string{"bark-tts", "n8n", "local-exec", "filesystem"}
