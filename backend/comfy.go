package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"story-video-pipeline/config"
)

// ComfyClient submits workflow jobs to a ComfyUI server: queue a filled
// workflow graph, poll its history until outputs appear, then fetch the
// produced artifacts. The workflow template is an external, versioned
// JSON artifact; this client only fills the configured node inputs.
type ComfyClient struct {
	serverAddress string
	clientID      string
	workflow      config.WorkflowConfig
	httpClient    *http.Client
	maxAttempts   int
}

func NewComfyClient(cfg *config.Config) *ComfyClient {
	return &ComfyClient{
		serverAddress: cfg.Backend.ComfyServerAddress,
		clientID:      uuid.NewString(),
		workflow:      cfg.Backend.VideoWorkflow,
		httpClient:    &http.Client{Timeout: time.Duration(cfg.Backend.TimeoutSec) * time.Second},
		maxAttempts:   cfg.Backend.MaxAttempts,
	}
}

// VideoJob is the typed request for the image-to-video workflow.
type VideoJob struct {
	Prompt    string
	ImageFile string
	Seed      int64
}

type queueResponse struct {
	PromptID string `json:"prompt_id"`
}

type historyOutput struct {
	Images []artifactRef `json:"images"`
	Gifs   []artifactRef `json:"gifs"`
}

type artifactRef struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// GenerateVideo runs one image-to-video job and returns the produced
// clip's bytes.
func (c *ComfyClient) GenerateVideo(ctx context.Context, job VideoJob) ([]byte, error) {
	graph, err := c.loadWorkflow()
	if err != nil {
		return nil, err
	}

	uploaded, err := c.uploadImage(ctx, job.ImageFile)
	if err != nil {
		return nil, fmt.Errorf("upload source image: %w", err)
	}

	if err := bindInput(graph, c.workflow.Prompt, job.Prompt); err != nil {
		return nil, err
	}
	if err := bindInput(graph, c.workflow.Image, uploaded); err != nil {
		return nil, err
	}
	if err := bindInput(graph, c.workflow.Seed, job.Seed); err != nil {
		return nil, err
	}

	promptID, err := c.queuePrompt(ctx, graph)
	if err != nil {
		return nil, fmt.Errorf("queue workflow: %w", err)
	}
	log.Printf("[backend] comfy job queued: %s", promptID)

	refs, err := c.waitForOutputs(ctx, promptID)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("comfy job %s produced no artifacts", promptID)
	}
	return c.fetchArtifact(ctx, refs[0])
}

// Interrupt cancels the in-flight job. Used by the shutdown hook.
func (c *ComfyClient) Interrupt(ctx context.Context) {
	if err := c.postJSON(ctx, "/interrupt", map[string]string{}, nil); err != nil {
		log.Printf("[backend] comfy interrupt: %v", err)
	}
}

// FreeMemory asks the server to unload models and free accelerator
// memory. Used by the shutdown hook, best-effort.
func (c *ComfyClient) FreeMemory(ctx context.Context) {
	body := map[string]bool{"unload_models": true, "free_memory": true}
	if err := c.postJSON(ctx, "/free", body, nil); err != nil {
		log.Printf("[backend] comfy free: %v", err)
	}
}

func (c *ComfyClient) loadWorkflow() (map[string]map[string]any, error) {
	data, err := os.ReadFile(c.workflow.Template)
	if err != nil {
		return nil, fmt.Errorf("read workflow template: %w", err)
	}
	var graph map[string]map[string]any
	if err := json.Unmarshal(data, &graph); err != nil {
		return nil, fmt.Errorf("parse workflow template: %w", err)
	}
	return graph, nil
}

// bindInput sets one input of one node. The binding names come from
// config; the graph structure itself is opaque to the pipeline.
func bindInput(graph map[string]map[string]any, b config.WorkflowBinding, value any) error {
	node, ok := graph[b.Node]
	if !ok {
		return fmt.Errorf("workflow has no node %q", b.Node)
	}
	inputs, ok := node["inputs"].(map[string]any)
	if !ok {
		return fmt.Errorf("workflow node %q has no inputs", b.Node)
	}
	inputs[b.Input] = value
	return nil
}

func (c *ComfyClient) queuePrompt(ctx context.Context, graph map[string]map[string]any) (string, error) {
	body := map[string]any{"prompt": graph, "client_id": c.clientID}
	var resp queueResponse
	if err := c.postJSON(ctx, "/prompt", body, &resp); err != nil {
		return "", err
	}
	if resp.PromptID == "" {
		return "", fmt.Errorf("queue response missing prompt_id")
	}
	return resp.PromptID, nil
}

// waitForOutputs polls the job history until the outputs map is
// populated or the context expires.
func (c *ComfyClient) waitForOutputs(ctx context.Context, promptID string) ([]artifactRef, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for comfy job %s: %w", promptID, ctx.Err())
		case <-ticker.C:
		}

		var history map[string]struct {
			Outputs map[string]historyOutput `json:"outputs"`
		}
		if err := c.getJSON(ctx, "/history/"+promptID, &history); err != nil {
			log.Printf("[backend] comfy history poll: %v", err)
			continue
		}
		entry, ok := history[promptID]
		if !ok || len(entry.Outputs) == 0 {
			continue
		}

		var refs []artifactRef
		for _, out := range entry.Outputs {
			refs = append(refs, out.Images...)
			refs = append(refs, out.Gifs...)
		}
		return refs, nil
	}
}

func (c *ComfyClient) fetchArtifact(ctx context.Context, ref artifactRef) ([]byte, error) {
	params := url.Values{}
	params.Set("filename", ref.Filename)
	params.Set("subfolder", ref.Subfolder)
	params.Set("type", ref.Type)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("http://%s/view?%s", c.serverAddress, params.Encode()), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch artifact %s: HTTP %d", ref.Filename, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (c *ComfyClient) uploadImage(ctx context.Context, file string) (string, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("image", filepath.Base(file))
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := writer.WriteField("overwrite", "true"); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("http://%s/upload/image", c.serverAddress), &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var uploaded struct {
		Name      string `json:"name"`
		Subfolder string `json:"subfolder"`
	}
	if err := json.Unmarshal(body, &uploaded); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if uploaded.Name == "" {
		return "", fmt.Errorf("upload response missing file name")
	}
	if uploaded.Subfolder != "" {
		return uploaded.Subfolder + "/" + uploaded.Name, nil
	}
	return uploaded.Name, nil
}

func (c *ComfyClient) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("http://%s%s", c.serverAddress, path), strings.NewReader(string(payload)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doJSON(req, out)
}

func (c *ComfyClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("http://%s%s", c.serverAddress, path), nil)
	if err != nil {
		return err
	}
	return c.doJSON(req, out)
}

func (c *ComfyClient) doJSON(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(string(data), 200))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}
