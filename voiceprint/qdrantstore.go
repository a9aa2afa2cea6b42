package voiceprint

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// QdrantConfig параметры подключения к Qdrant
type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
}

// DefaultQdrantConfig возвращает конфигурацию по умолчанию
func DefaultQdrantConfig() QdrantConfig {
	return QdrantConfig{
		Host:       "localhost",
		Port:       6334,
		Collection: "speakers",
	}
}

// QdrantStore хранилище профилей в удалённом векторном индексе Qdrant.
// Векторы индексируются по косинусной метрике, метаданные профиля
// лежат в payload. Qdrant принимает только UUID или числа как id точки,
// поэтому произвольные id детерминированно сводятся к UUID, а исходный
// id сохраняется в payload
type QdrantStore struct {
	client     *qdrant.Client
	collection string
}

// пространство имён для детерминированного UUID из произвольного id
var qdrantIDNamespace = uuid.MustParse("9a7c3c6e-1f74-4b6e-8e3a-5d2f0f3b9c11")

// NewQdrantStore подключается к Qdrant. Само подключение ленивое
// (gRPC), поэтому дополнительно делается health check
func NewQdrantStore(ctx context.Context, cfg QdrantConfig) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(64 << 20)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: qdrant client: %v", ErrStoreUnavailable, err)
	}

	s := &QdrantStore{
		client:     client,
		collection: cfg.Collection,
	}
	if err := s.Ping(ctx); err != nil {
		client.Close()
		return nil, err
	}

	log.Printf("[Voiceprint] QdrantStore подключён: %s:%d, коллекция %q", cfg.Host, cfg.Port, cfg.Collection)
	return s, nil
}

// Ping проверяет доступность сервера
func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("%w: health check: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Upsert сохраняет профиль, при первом обращении создавая коллекцию под
// размерность отпечатка
func (s *QdrantStore) Upsert(ctx context.Context, profile SpeakerProfile) error {
	if profile.ID == "" {
		return fmt.Errorf("profile id is empty")
	}
	if err := s.ensureCollection(ctx, len(profile.Voiceprint.Values)); err != nil {
		return err
	}

	sources := make([]any, 0, len(profile.Sources))
	for _, src := range profile.Sources {
		sources = append(sources, map[string]any{"kind": src.Kind, "ref": src.Ref})
	}
	tags := make([]any, 0, len(profile.Tags))
	for _, tag := range profile.Tags {
		tags = append(tags, tag)
	}

	payload := qdrant.NewValueMap(map[string]any{
		"spk_id":       profile.ID,
		"name":         profile.Name,
		"tags":         tags,
		"sample_count": profile.SampleCount,
		"sources":      sources,
		"sample_path":  profile.SamplePath,
		"created_at":   profile.CreatedAt.UnixMilli(),
		"updated_at":   profile.UpdatedAt.UnixMilli(),
	})

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{{
			Id:      pointID(profile.ID),
			Vectors: qdrant.NewVectors(profile.Voiceprint.Values...),
			Payload: payload,
		}},
	})
	if err != nil {
		return fmt.Errorf("%w: upsert %s: %v", ErrStoreUnavailable, profile.ID, err)
	}
	return nil
}

// Get возвращает профиль по ID или nil
func (s *QdrantStore) Get(ctx context.Context, id string) (*SpeakerProfile, error) {
	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            []*qdrant.PointId{pointID(id)},
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		if notFoundCollection(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: get %s: %v", ErrStoreUnavailable, id, err)
	}
	if len(points) == 0 {
		return nil, nil
	}

	p := profileFromPayload(points[0].Payload, vectorOf(points[0].Vectors))
	return &p, nil
}

// List возвращает все профили в порядке создания
func (s *QdrantStore) List(ctx context.Context) ([]SpeakerProfile, error) {
	// профилей спикеров немного, одной страницы достаточно
	limit := uint32(4096)
	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		if notFoundCollection(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: scroll: %v", ErrStoreUnavailable, err)
	}

	profiles := make([]SpeakerProfile, 0, len(points))
	for _, pt := range points {
		profiles = append(profiles, profileFromPayload(pt.Payload, vectorOf(pt.Vectors)))
	}
	sortProfilesByCreation(profiles)
	return profiles, nil
}

// Search поиск ближайших векторов на стороне сервера
func (s *QdrantStore) Search(ctx context.Context, query Voiceprint, topK int) ([]MatchCandidate, error) {
	return s.search(ctx, query, topK, nil)
}

// SearchFiltered как Search, с payload-фильтром по имени
func (s *QdrantStore) SearchFiltered(ctx context.Context, query Voiceprint, topK int, names []string) ([]MatchCandidate, error) {
	return s.search(ctx, query, topK, names)
}

func (s *QdrantStore) search(ctx context.Context, query Voiceprint, topK int, names []string) ([]MatchCandidate, error) {
	if topK <= 0 {
		return nil, nil
	}

	var filter *qdrant.Filter
	if len(names) > 0 {
		filter = &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatchKeywords("name", names...)},
		}
	}

	limit := uint64(topK)
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(query.Values...),
		Filter:         filter,
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		if notFoundCollection(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: query: %v", ErrStoreUnavailable, err)
	}

	type scored struct {
		candidate MatchCandidate
		createdAt int64
	}
	ranked := make([]scored, 0, len(points))
	for _, pt := range points {
		p := profileFromPayload(pt.Payload, nil)
		ranked = append(ranked, scored{
			candidate: MatchCandidate{
				ProfileID:   p.ID,
				Name:        p.Name,
				Similarity:  pt.Score,
				Tags:        p.Tags,
				SampleCount: p.SampleCount,
			},
			createdAt: p.CreatedAt.UnixMilli(),
		})
	}

	// сервер не гарантирует порядок при равных скоррах — закрепляем:
	// раньше созданный профиль первым
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].candidate.Similarity != ranked[j].candidate.Similarity {
			return ranked[i].candidate.Similarity > ranked[j].candidate.Similarity
		}
		if ranked[i].createdAt != ranked[j].createdAt {
			return ranked[i].createdAt < ranked[j].createdAt
		}
		return ranked[i].candidate.ProfileID < ranked[j].candidate.ProfileID
	})

	candidates := make([]MatchCandidate, 0, len(ranked))
	for _, r := range ranked {
		candidates = append(candidates, r.candidate)
	}
	return candidates, nil
}

// Delete удаляет точку; false, если её не было
func (s *QdrantStore) Delete(ctx context.Context, id string) (bool, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}

	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelector(pointID(id)),
	})
	if err != nil {
		return false, fmt.Errorf("%w: delete %s: %v", ErrStoreUnavailable, id, err)
	}
	return true, nil
}

// Close закрывает gRPC-соединение
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// ensureCollection создаёт коллекцию под размерность вектора, если её
// ещё нет
func (s *QdrantStore) ensureCollection(ctx context.Context, dim int) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("%w: collection exists: %v", ErrStoreUnavailable, err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("%w: create collection: %v", ErrStoreUnavailable, err)
	}
	log.Printf("[Voiceprint] Создана коллекция %q (dim=%d)", s.collection, dim)
	return nil
}

// pointID переводит произвольный id профиля в допустимый id точки:
// готовый UUID проходит как есть, иначе строится UUIDv5 от id
func pointID(id string) *qdrant.PointId {
	if _, err := uuid.Parse(id); err == nil {
		return qdrant.NewID(id)
	}
	return qdrant.NewID(uuid.NewSHA1(qdrantIDNamespace, []byte(id)).String())
}

// profileFromPayload восстанавливает профиль из payload точки
func profileFromPayload(payload map[string]*qdrant.Value, vector []float32) SpeakerProfile {
	p := SpeakerProfile{
		ID:          payloadString(payload, "spk_id"),
		Name:        payloadString(payload, "name"),
		SampleCount: int(payloadInt(payload, "sample_count")),
		SamplePath:  payloadString(payload, "sample_path"),
		CreatedAt:   time.UnixMilli(payloadInt(payload, "created_at")).UTC(),
		UpdatedAt:   time.UnixMilli(payloadInt(payload, "updated_at")).UTC(),
	}
	if vector != nil {
		p.Voiceprint = Voiceprint{Dim: len(vector), Values: vector}
	}

	if list := payload["tags"].GetListValue(); list != nil {
		for _, v := range list.Values {
			if tag := v.GetStringValue(); tag != "" {
				p.Tags = append(p.Tags, tag)
			}
		}
	}
	if list := payload["sources"].GetListValue(); list != nil {
		for _, v := range list.Values {
			src := v.GetStructValue()
			if src == nil {
				continue
			}
			p.Sources = append(p.Sources, SourceRef{
				Kind: src.Fields["kind"].GetStringValue(),
				Ref:  src.Fields["ref"].GetStringValue(),
			})
		}
	}
	return p
}

func payloadString(payload map[string]*qdrant.Value, key string) string {
	return payload[key].GetStringValue()
}

func payloadInt(payload map[string]*qdrant.Value, key string) int64 {
	return payload[key].GetIntegerValue()
}

// vectorOf достаёт плоский вектор из ответа
func vectorOf(vectors *qdrant.VectorsOutput) []float32 {
	if v := vectors.GetVector(); v != nil {
		return v.GetData()
	}
	return nil
}

// notFoundCollection true для ошибки "коллекции ещё нет": пустое
// хранилище не считается недоступным
func notFoundCollection(err error) bool {
	return status.Code(err) == codes.NotFound
}

// sortProfilesByCreation порядок создания, при равенстве — по ID
func sortProfilesByCreation(profiles []SpeakerProfile) {
	sort.Slice(profiles, func(i, j int) bool {
		if !profiles[i].CreatedAt.Equal(profiles[j].CreatedAt) {
			return profiles[i].CreatedAt.Before(profiles[j].CreatedAt)
		}
		return profiles[i].ID < profiles[j].ID
	})
}
