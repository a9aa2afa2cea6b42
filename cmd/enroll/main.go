// Регистрация голосового профиля спикера.
//
// Из файлов:
//
//	enroll -name "Анна" -embedding-model wespeaker.onnx -data data/speakers \
//	       -input anna1.wav,anna2.mp3
//
// С микрофона (10 секунд):
//
//	enroll -name "Анна" -embedding-model wespeaker.onnx -data data/speakers \
//	       -mic-seconds 10 [-device "MacBook"]
//
// Дозапись в существующий профиль:
//
//	enroll -id <uuid> -name "Анна" -merge -input anna3.wav ...
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"speakerkit/ai"
	"speakerkit/audio"
	"speakerkit/internal/config"
	"speakerkit/voiceprint"
)

func main() {
	cfg := config.Load()
	if cfg.SpeakerName == "" {
		log.Fatal("укажите имя спикера: -name \"Анна\"")
	}
	if cfg.EmbeddingModel == "" {
		log.Fatal("укажите модель эмбеддингов: -embedding-model wespeaker.onnx")
	}
	if cfg.InputPath == "" && cfg.MicSeconds <= 0 {
		log.Fatal("укажите источник: -input file.wav или -mic-seconds 10")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		log.Fatalf("модель эмбеддингов: %v", err)
	}
	defer embedder.Close()

	store, err := voiceprint.NewFileStore(cfg.DataDir)
	if err != nil {
		log.Fatalf("хранилище профилей: %v", err)
	}
	defer store.Close()

	enrollCfg := voiceprint.DefaultEnrollConfig()
	enrollCfg.WindowS = cfg.WindowS
	enrollCfg.HopS = cfg.HopS
	enrollCfg.MinTotalS = cfg.MinTotalS
	enrollCfg.ClipDir = cfg.ClipDir
	enroller := voiceprint.NewEnroller(store, embedder, enrollCfg)

	samples, sources, err := collectSamples(ctx, cfg)
	if err != nil {
		log.Fatalf("сбор аудио: %v", err)
	}

	profile, err := enroller.Enroll(ctx, voiceprint.EnrollRequest{
		ID:      cfg.SpeakerID,
		Name:    cfg.SpeakerName,
		Tags:    cfg.Tags,
		Sources: sources,
		Merge:   cfg.Merge,
	}, samples)
	if err != nil {
		if errors.Is(err, voiceprint.ErrNoUsableAudio) {
			log.Fatal("ни один сэмпл не дал пригодного аудио, профиль не создан")
		}
		log.Fatalf("регистрация не удалась: %v", err)
	}

	log.Printf("профиль сохранён: %s (%s), сэмплов: %d, размерность: %d",
		profile.Name, profile.ID, profile.SampleCount, profile.Voiceprint.Dim)
}

// closableEmbedder общий вид обоих бэкендов эмбеддингов
type closableEmbedder interface {
	voiceprint.Embedder
	Close()
}

// buildEmbedder выбирает бэкенд эмбеддингов: sherpa-onnx либо голая
// WeSpeaker-модель через onnxruntime
func buildEmbedder(cfg *config.Config) (closableEmbedder, error) {
	if cfg.EmbedderBackend == "onnx" {
		return ai.NewSpeakerEncoder(ai.DefaultSpeakerEncoderConfig(cfg.EmbeddingModel))
	}
	provider := cfg.Provider
	if provider == "" || provider == "auto" {
		provider = "cpu"
	}
	return ai.NewSherpaEmbedder(ai.SherpaEmbedderConfig{
		ModelPath:  cfg.EmbeddingModel,
		SampleRate: 16000,
		NumThreads: cfg.NumThreads,
		Provider:   provider,
	})
}

// collectSamples читает сэмплы из файлов (-input, через запятую) либо
// пишет один сэмпл с микрофона
func collectSamples(ctx context.Context, cfg *config.Config) ([][]float32, []voiceprint.SourceRef, error) {
	if cfg.InputPath != "" {
		var samples [][]float32
		var sources []voiceprint.SourceRef
		for _, path := range strings.Split(cfg.InputPath, ",") {
			path = strings.TrimSpace(path)
			if path == "" {
				continue
			}
			pcm, err := audio.DecodeFileMono(path, 16000)
			if err != nil {
				return nil, nil, err
			}
			log.Printf("прочитан %s: %.1f сек", path, float64(audio.DurationMs(pcm, 16000))/1000)
			samples = append(samples, pcm)
			sources = append(sources, voiceprint.SourceRef{Kind: "file", Ref: path})
		}
		return samples, sources, nil
	}

	recorder, err := audio.NewRecorder(16000)
	if err != nil {
		return nil, nil, err
	}
	defer recorder.Close()

	if cfg.Device != "" {
		if err := recorder.SetDeviceByName(cfg.Device); err != nil {
			return nil, nil, err
		}
	}

	log.Printf("запись с микрофона, %d сек — говорите...", cfg.MicSeconds)
	recCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.MicSeconds)*time.Second)
	defer cancel()

	pcm, err := recorder.Record(recCtx)
	if err != nil {
		return nil, nil, err
	}
	log.Printf("записано %.1f сек", float64(audio.DurationMs(pcm, 16000))/1000)

	return [][]float32{pcm}, []voiceprint.SourceRef{{Kind: "mic", Ref: time.Now().Format(time.RFC3339)}}, nil
}
