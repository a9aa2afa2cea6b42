// Анализ записи: кто когда говорил и сколько.
//
// Режим кластеризации (без базы профилей):
//
//	analyze -input meeting.wav -vad-model silero_vad.onnx -embedding-model wespeaker.onnx
//
// Режим идентификации (с базой профилей):
//
//	analyze -input meeting.wav -vad-model silero_vad.onnx -embedding-model wespeaker.onnx \
//	        -data data/speakers -hints "Анна,Борис"
//
// С диаризационным бэкендом вместо VAD:
//
//	analyze -input meeting.wav -segmentation-model pyannote.onnx -embedding-model wespeaker.onnx
//
// Удалённое хранилище: -qdrant-host localhost (-local-fallback для
// деградации на локальные файлы).
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"speakerkit/ai"
	"speakerkit/audio"
	"speakerkit/diar"
	"speakerkit/internal/config"
	"speakerkit/internal/service"
	"speakerkit/voiceprint"
)

func main() {
	cfg := config.Load()
	if cfg.InputPath == "" {
		log.Fatal("укажите запись: -input file.wav")
	}
	if cfg.EmbeddingModel == "" {
		log.Fatal("укажите модель эмбеддингов: -embedding-model wespeaker.onnx")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	samples, err := audio.DecodeFileMono(cfg.InputPath, 16000)
	if err != nil {
		log.Fatalf("не удалось прочитать %s: %v", cfg.InputPath, err)
	}

	detector, err := buildDetector(cfg)
	if err != nil {
		log.Fatalf("детектор речи: %v", err)
	}
	defer detector.Close()

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		log.Fatalf("модель эмбеддингов: %v", err)
	}
	defer embedder.Close()

	store, matcher := buildStore(ctx, cfg)
	if store != nil {
		defer store.Close()
	}

	svcConfig := service.DiarizationConfig{
		SampleRate: 16000,
		Builder: diar.BuilderConfig{
			CollarMs:    cfg.CollarMs,
			MinSpeechMs: cfg.MinSpeechMs,
		},
		ClusterThreshold: cfg.ClusterThreshold,
		Identify: voiceprint.IdentifyParams{
			TopK:      cfg.TopK,
			Threshold: float32(cfg.IdentifyThreshold),
			Hints:     cfg.Hints,
			HintBonus: float32(cfg.HintBonus),
			HardHints: cfg.HardHints,
		},
		SegmentTimeout: cfg.SegmentTimeout,
		Parallelism:    cfg.Parallelism,
	}
	svc := service.NewDiarizationService(detector, embedder, matcher, svcConfig)

	started := time.Now()
	var report *service.Report
	if matcher != nil {
		report, err = svc.AnalyzeIdentified(ctx, samples)
	} else {
		report, err = svc.AnalyzeClustered(ctx, samples)
	}
	if err != nil {
		if report == nil {
			log.Fatalf("анализ не удался: %v", err)
		}
		log.Printf("анализ прерван (%v), отчёт частичный", err)
	}
	log.Printf("анализ занял %v", time.Since(started).Round(time.Millisecond))

	printReport(report)
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
	return ai.NewSherpaEmbedder(ai.SherpaEmbedderConfig{
		ModelPath:  cfg.EmbeddingModel,
		SampleRate: 16000,
		NumThreads: cfg.NumThreads,
		Provider:   providerOrCPU(cfg.Provider),
	})
}

// buildDetector выбирает бэкенд: диаризация sherpa, Silero VAD или
// энергетический VAD
func buildDetector(cfg *config.Config) (ai.IntervalDetector, error) {
	switch {
	case cfg.SegmentationModel != "":
		diarCfg := ai.DefaultSherpaDiarizerConfig(cfg.SegmentationModel, cfg.EmbeddingModel)
		diarCfg.NumThreads = cfg.NumThreads
		diarCfg.Provider = cfg.Provider
		return ai.NewSherpaDiarizer(diarCfg)
	case cfg.VADModelPath != "":
		vadCfg := ai.DefaultSileroVADConfig(cfg.VADModelPath)
		vadCfg.NumThreads = cfg.NumThreads
		vadCfg.Provider = providerOrCPU(cfg.Provider)
		return ai.NewSileroVAD(vadCfg)
	default:
		log.Printf("модели VAD не заданы, используется энергетический VAD")
		return ai.NewEnergyVAD(ai.DefaultEnergyVADConfig()), nil
	}
}

// buildStore собирает хранилище профилей и идентификатор. Без -data и
// -qdrant-host идентификация отключена
func buildStore(ctx context.Context, cfg *config.Config) (voiceprint.Store, *voiceprint.Matcher) {
	var store voiceprint.Store

	if cfg.UseQdrant {
		qdrant, err := voiceprint.NewQdrantStore(ctx, voiceprint.QdrantConfig{
			Host:       cfg.QdrantHost,
			Port:       cfg.QdrantPort,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.QdrantCollection,
		})
		switch {
		case err == nil && cfg.LocalFallback:
			local, lerr := voiceprint.NewFileStore(cfg.DataDir)
			if lerr != nil {
				log.Fatalf("локальное хранилище: %v", lerr)
			}
			store = voiceprint.NewFallbackStore(qdrant, local)
		case err == nil:
			store = qdrant
		case cfg.LocalFallback:
			log.Printf("Qdrant недоступен (%v), используется локальное хранилище", err)
			local, lerr := voiceprint.NewFileStore(cfg.DataDir)
			if lerr != nil {
				log.Fatalf("локальное хранилище: %v", lerr)
			}
			store = local
		default:
			log.Fatalf("Qdrant недоступен: %v", err)
		}
	} else if cfg.DataDir != "" {
		local, err := voiceprint.NewFileStore(cfg.DataDir)
		if err != nil {
			log.Fatalf("локальное хранилище: %v", err)
		}
		store = local
	}

	if store == nil {
		return nil, nil
	}
	return store, voiceprint.NewMatcher(store)
}

func providerOrCPU(provider string) string {
	if provider == "" || provider == "auto" {
		return "cpu"
	}
	return provider
}

func printReport(report *service.Report) {
	fmt.Println()
	fmt.Println("Сегменты:")
	for _, seg := range report.Segments {
		label := seg.Label
		if label == "" {
			label = diar.UnknownSpeaker
		}
		fmt.Printf("  %8.2f - %8.2f  %s\n",
			float64(seg.StartMs)/1000, float64(seg.EndMs)/1000, label)
	}

	fmt.Println()
	fmt.Println("Доли речи:")
	for _, share := range report.Shares {
		fmt.Printf("  %-20s %6.2f%%  (%.1f сек)\n",
			share.Name, share.Percent, float64(share.TotalMs)/1000)
	}
}
