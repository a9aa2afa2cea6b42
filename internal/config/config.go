// Package config флаговая конфигурация утилит speakerkit
package config

import (
	"flag"
	"path/filepath"
	"strings"
	"time"
)

// Config собранные значения флагов
type Config struct {
	// Аудио и модели
	InputPath         string
	VADModelPath      string
	SegmentationModel string
	EmbeddingModel    string
	EmbedderBackend   string
	NumThreads        int
	Provider          string

	// Сборка сегментов
	CollarMs    uint64
	MinSpeechMs uint64

	// Кластеризация и идентификация
	ClusterThreshold  float64
	IdentifyThreshold float64
	TopK              int
	HintBonus         float64
	Hints             []string
	HardHints         bool
	SegmentTimeout    time.Duration
	Parallelism       int

	// Хранилище
	DataDir          string
	ClipDir          string
	QdrantHost       string
	QdrantPort       int
	QdrantAPIKey     string
	QdrantCollection string
	UseQdrant        bool
	LocalFallback    bool

	// Регистрация
	WindowS     float64
	HopS        float64
	MinTotalS   float64
	SpeakerName string
	SpeakerID   string
	Tags        []string
	Merge       bool
	MicSeconds  int
	Device      string
}

// Load разбирает флаги командной строки
func Load() *Config {
	input := flag.String("input", "", "Path to WAV/MP3 recording")
	vadModel := flag.String("vad-model", "", "Path to Silero VAD model (silero_vad.onnx)")
	segModel := flag.String("segmentation-model", "", "Path to pyannote segmentation model")
	embModel := flag.String("embedding-model", "", "Path to speaker embedding model (wespeaker/3dspeaker)")
	embBackend := flag.String("embedder", "sherpa", "Embedding backend: sherpa or onnx (raw WeSpeaker model via onnxruntime)")
	numThreads := flag.Int("threads", 4, "Number of inference threads")
	provider := flag.String("provider", "auto", "ONNX provider: cpu, cuda, coreml, auto")

	collarMs := flag.Uint64("collar-ms", 250, "Max pause between merged intervals of one voice")
	minSpeechMs := flag.Uint64("min-speech-ms", 400, "Drop merged segments shorter than this")

	clusterThreshold := flag.Float64("cluster-threshold", 0.75, "Cosine similarity threshold for opening a new cluster")
	identifyThreshold := flag.Float64("identify-threshold", 0.60, "Min similarity to accept an identification")
	topK := flag.Int("top-k", 3, "Number of candidates per identification query")
	hintBonus := flag.Float64("hint-bonus", 0.01, "Similarity bonus for hinted speaker names")
	hints := flag.String("hints", "", "Comma-separated expected speaker names")
	hardHints := flag.Bool("hard-hints", false, "Restrict candidate pool to hinted names")
	segmentTimeout := flag.Duration("segment-timeout", 10*time.Second, "Per-segment embedding timeout")
	parallelism := flag.Int("parallelism", 4, "Concurrent segment embeddings in identify mode")

	dataDir := flag.String("data", "data/speakers", "Directory for local speaker profiles")
	clipDir := flag.String("clips", "", "Directory for enrollment audio clips (default: dataDir/clips)")
	qdrantHost := flag.String("qdrant-host", "", "Qdrant host; empty disables the remote backend")
	qdrantPort := flag.Int("qdrant-port", 6334, "Qdrant gRPC port")
	qdrantAPIKey := flag.String("qdrant-api-key", "", "Qdrant API key")
	qdrantCollection := flag.String("qdrant-collection", "speakers", "Qdrant collection name")
	localFallback := flag.Bool("local-fallback", false, "Fall back to the local store when Qdrant is unavailable")

	windowS := flag.Float64("window-s", 1.5, "Enrollment embedding window length, seconds")
	hopS := flag.Float64("hop-s", 0.75, "Enrollment embedding window hop, seconds")
	minTotalS := flag.Float64("min-total-s", 1.0, "Samples shorter than this are embedded as a single window")
	speakerName := flag.String("name", "", "Speaker name for enrollment")
	speakerID := flag.String("id", "", "Stable profile id (required for -merge)")
	tags := flag.String("tags", "", "Comma-separated profile tags")
	merge := flag.Bool("merge", false, "Merge with the existing profile instead of replacing it")
	micSeconds := flag.Int("mic-seconds", 0, "Record this many seconds from the microphone instead of reading files")
	device := flag.String("device", "", "Capture device name (substring match)")

	flag.Parse()

	finalClipDir := *clipDir
	if finalClipDir == "" {
		finalClipDir = filepath.Join(*dataDir, "clips")
	}

	return &Config{
		InputPath:         *input,
		VADModelPath:      *vadModel,
		SegmentationModel: *segModel,
		EmbeddingModel:    *embModel,
		EmbedderBackend:   *embBackend,
		NumThreads:        *numThreads,
		Provider:          *provider,
		CollarMs:          *collarMs,
		MinSpeechMs:       *minSpeechMs,
		ClusterThreshold:  *clusterThreshold,
		IdentifyThreshold: *identifyThreshold,
		TopK:              *topK,
		HintBonus:         *hintBonus,
		Hints:             splitList(*hints),
		HardHints:         *hardHints,
		SegmentTimeout:    *segmentTimeout,
		Parallelism:       *parallelism,
		DataDir:           *dataDir,
		ClipDir:           finalClipDir,
		QdrantHost:        *qdrantHost,
		QdrantPort:        *qdrantPort,
		QdrantAPIKey:      *qdrantAPIKey,
		QdrantCollection:  *qdrantCollection,
		UseQdrant:         *qdrantHost != "",
		LocalFallback:     *localFallback,
		WindowS:           *windowS,
		HopS:              *hopS,
		MinTotalS:         *minTotalS,
		SpeakerName:       *speakerName,
		SpeakerID:         *speakerID,
		Tags:              splitList(*tags),
		Merge:             *merge,
		MicSeconds:        *micSeconds,
		Device:            *device,
	}
}

// splitList разбирает список через запятую, отбрасывая пустые элементы
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
