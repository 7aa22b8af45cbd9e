package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"

	"github.com/stratoform/controlplane/orcherr"
)

// SubprocessExecutor launches runner jobs by speaking JSON-over-stdin/stdout
// RPC to a long-lived local subprocess, one call per job. It keeps the
// subprocess alive across calls rather than spawning one per job, since the
// process itself (a container scheduler client) amortizes its own startup
// cost.
type SubprocessExecutor struct {
	path   string
	config map[string]any

	mu  sync.Mutex
	cmd *exec.Cmd
	enc *json.Encoder
	dec *json.Decoder
}

// NewSubprocessExecutor builds a SubprocessExecutor that execs path on its
// first call, forwarding config on every request.
func NewSubprocessExecutor(path string, config map[string]any) *SubprocessExecutor {
	if config == nil {
		config = map[string]any{}
	}
	return &SubprocessExecutor{path: path, config: config}
}

type rpcRequest struct {
	Method  string         `json:"method"`
	Config  map[string]any `json:"config"`
	Payload any            `json:"payload"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func (r *SubprocessExecutor) Launch(ctx context.Context, in LaunchInput) (LaunchOutput, error) {
	var out LaunchOutput
	if err := r.call(ctx, "launch", in, &out); err != nil {
		return LaunchOutput{}, err
	}
	return out, nil
}

func (r *SubprocessExecutor) call(ctx context.Context, method string, payload any, out any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cmd == nil {
		// The subprocess outlives any individual request; its lifetime is
		// the executor's, not the caller's context.
		cmd := exec.CommandContext(context.Background(), r.path)
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return orcherr.External("runner_launch_failed", "start runner subprocess", err)
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return orcherr.External("runner_launch_failed", "start runner subprocess", err)
		}
		if err := cmd.Start(); err != nil {
			return orcherr.External("runner_launch_failed", "start runner subprocess", err)
		}
		r.cmd = cmd
		r.enc = json.NewEncoder(stdin)
		r.dec = json.NewDecoder(stdout)
	}

	if err := r.enc.Encode(rpcRequest{Method: method, Config: r.config, Payload: payload}); err != nil {
		return orcherr.External("runner_launch_failed", "write runner request", err)
	}

	var resp rpcResponse
	if err := r.dec.Decode(&resp); err != nil {
		return orcherr.External("runner_launch_failed", "read runner response", err)
	}
	if resp.Error != nil {
		if resp.Error.Code != "" {
			return orcherr.Newf(orcherr.KindExternal, resp.Error.Code, resp.Error.Message, nil)
		}
		return orcherr.External("runner_error", resp.Error.Message, nil)
	}
	if out != nil && resp.Result != nil {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("runner: decode result: %w", err)
		}
	}
	return nil
}
