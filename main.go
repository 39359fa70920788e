package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"story-video-pipeline/backend"
	"story-video-pipeline/config"
	"story-video-pipeline/render"
	"story-video-pipeline/resources"
	"story-video-pipeline/story"
	"story-video-pipeline/types"
	"story-video-pipeline/upload"
)

type stage struct {
	name string
	run  func(context.Context, *types.Story) error
}

func main() {
	// Load .env for local dev; deployments inject real env vars.
	_ = godotenv.Load()

	cfg, err := config.Load("config.yaml")
	if err != nil {
		if os.IsNotExist(err) {
			log.Println("config.yaml not found, using defaults")
			cfg = config.Default()
		} else {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := story.NewStore(cfg.Paths.Stories)
	titles, err := store.EnsureFromList(cfg.Paths.StoryList)
	if err != nil {
		log.Fatalf("Failed to read story list: %v", err)
	}
	if len(os.Args) > 1 {
		titles = []string{os.Args[1]}
	}
	if len(titles) == 0 {
		log.Fatalf("No stories to process: add entries to %s", cfg.Paths.StoryList)
	}

	media := backend.NewClient(cfg)
	chat := backend.NewChatClient(cfg)
	comfy := backend.NewComfyClient(cfg)
	manager := resources.NewManager(cfg, store, media, chat, comfy)
	renderer := render.New(cfg, store, media)
	uploader := upload.New(cfg)

	// Backends hold accelerator memory between requests; release it even
	// when the run context is already cancelled.
	defer func() {
		cleanup, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		comfy.Interrupt(cleanup)
		comfy.FreeMemory(cleanup)
		media.FreeResources(cleanup)
	}()

	stages := []stage{
		{"split", manager.SplitStoryIntoChunks},
		{"prompts", manager.GenerateScenePrompts},
		{"audios", manager.GenerateAudios},
		{"images", manager.GenerateSceneImages},
		{"videos", manager.GenerateSceneVideos},
		{"transcripts", manager.GenerateTranscripts},
		{"render", renderer.Run},
	}

	failed := 0
	for _, title := range titles {
		if ctx.Err() != nil {
			break
		}
		log.Printf("━━━ %s ━━━", title)
		if err := processStory(ctx, store, stages, uploader, title); err != nil {
			log.Printf("❌ %s: %v", title, err)
			failed++
			continue
		}
		log.Printf("✅ %s done", title)
	}

	if failed > 0 || ctx.Err() != nil {
		os.Exit(1)
	}
}

// processStory runs every stage over one story, persisting the record
// after each stage so a rerun resumes where the last run stopped.
func processStory(ctx context.Context, store *story.Store, stages []stage, uploader *upload.Uploader, title string) error {
	st, err := store.Load(title)
	if err != nil {
		return err
	}

	for _, stage := range stages {
		if err := stage.run(ctx, st); err != nil {
			// Keep whatever the failed stage managed to produce.
			if saveErr := store.Save(st); saveErr != nil {
				log.Printf("save after %s failure: %v", stage.name, saveErr)
			}
			return err
		}
		if err := store.Save(st); err != nil {
			return err
		}
	}

	if _, err := uploader.Run(ctx, st); err != nil {
		return err
	}
	return nil
}
