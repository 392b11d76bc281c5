package api

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/samcharles93/quantchat/internal/model"
	"github.com/samcharles93/quantchat/internal/quant"
)

// ModelProvider hands out scorers for a model id. Scorers for the same model
// share one lock, so concurrent sessions never run a forward pass at once.
type ModelProvider interface {
	Scorer(ctx context.Context, modelID string, quantized bool) (model.Scorer, error)
	Models() ([]ModelInfo, error)
}

type ModelProviderConfig struct {
	// ModelsPath is a directory of YAML model cards, served alongside the
	// built-in presets.
	ModelsPath string
	Quant      quant.Config
	// Probe is the token sequence traced during conversion.
	Probe []int
}

// CachedModelProvider builds each model once and converts it on first use.
type CachedModelProvider struct {
	cfg   ModelProviderConfig
	mu    sync.Mutex
	cache map[string]*modelEntry
}

type modelEntry struct {
	mu        sync.Mutex
	full      *model.Model
	quantized *model.Model
}

const envModelsDir = "QUANTCHAT_MODELS_DIR"

var defaultProbe = []int{'q', 'u', 'a', 'n', 't'}

func NewCachedModelProvider(cfg ModelProviderConfig) *CachedModelProvider {
	if cfg.Quant == (quant.Config{}) {
		cfg.Quant = quant.DefaultConfig()
	}
	if len(cfg.Probe) == 0 {
		cfg.Probe = defaultProbe
	}
	return &CachedModelProvider{
		cfg:   cfg,
		cache: make(map[string]*modelEntry),
	}
}

func (p *CachedModelProvider) Scorer(ctx context.Context, modelID string, quantized bool) (model.Scorer, error) {
	key, cfg, err := p.resolve(modelID)
	if err != nil {
		return nil, err
	}
	entry, err := p.getOrLoad(key, cfg)
	if err != nil {
		return nil, err
	}
	if !quantized {
		return &lockedScorer{mu: &entry.mu, m: entry.full}, nil
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.quantized == nil {
		qm, _, err := quant.Convert(ctx, entry.full, p.cfg.Probe, p.cfg.Quant)
		if err != nil {
			return nil, err
		}
		entry.quantized = qm
	}
	return &lockedScorer{mu: &entry.mu, m: entry.quantized}, nil
}

func (p *CachedModelProvider) getOrLoad(key string, cfg model.Config) (*modelEntry, error) {
	p.mu.Lock()
	entry, ok := p.cache[key]
	p.mu.Unlock()
	if ok {
		return entry, nil
	}

	m, err := model.New(cfg)
	if err != nil {
		return nil, err
	}
	newEntry := &modelEntry{full: m}

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.cache[key]; ok {
		return existing, nil
	}
	p.cache[key] = newEntry
	return newEntry, nil
}

// resolve maps modelID to a cache key and configuration. Presets win over
// cards of the same name.
func (p *CachedModelProvider) resolve(modelID string) (string, model.Config, error) {
	modelID = strings.TrimSpace(modelID)
	if modelID == "" {
		modelID = model.DefaultModelID
	}
	if cfg, err := model.PresetConfig(modelID); err == nil {
		return modelID, cfg, nil
	}
	path := ""
	if looksLikePath(modelID) {
		path = filepath.Clean(modelID)
	} else {
		path = resolveInDir(p.modelsDir(), modelID)
	}
	if path == "" {
		return "", model.Config{}, fmt.Errorf("%w: %q", model.ErrUnknownModel, modelID)
	}
	cfg, err := readCard(path)
	if err != nil {
		return "", model.Config{}, err
	}
	return path, cfg, nil
}

// Models lists the presets followed by the cards found in the models
// directory.
func (p *CachedModelProvider) Models() ([]ModelInfo, error) {
	var out []ModelInfo
	for _, id := range model.Presets() {
		cfg, err := model.PresetConfig(id)
		if err != nil {
			return nil, err
		}
		out = append(out, modelInfo(id, "preset", cfg))
	}
	dir := p.modelsDir()
	if dir == "" {
		return out, nil
	}
	cards, err := discoverCards(dir)
	if err != nil {
		return nil, err
	}
	for _, path := range cards {
		cfg, err := readCard(path)
		if err != nil {
			return nil, err
		}
		id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		out = append(out, modelInfo(id, "card", cfg))
	}
	return out, nil
}

func (p *CachedModelProvider) modelsDir() string {
	if strings.TrimSpace(p.cfg.ModelsPath) != "" {
		return strings.TrimSpace(p.cfg.ModelsPath)
	}
	return strings.TrimSpace(os.Getenv(envModelsDir))
}

func modelInfo(id, source string, cfg model.Config) ModelInfo {
	return ModelInfo{
		ID:        id,
		Object:    "model",
		Source:    source,
		Hidden:    cfg.HiddenSize,
		Layers:    cfg.NumLayers,
		VocabSize: cfg.VocabSize,
	}
}

func readCard(path string) (model.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Config{}, fmt.Errorf("read model card: %w", err)
	}
	cfg, err := model.ParseCard(data)
	if err != nil {
		return model.Config{}, fmt.Errorf("model card %s: %w", path, err)
	}
	return cfg, nil
}

func isCardName(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

func looksLikePath(v string) bool {
	if strings.Contains(v, string(filepath.Separator)) {
		return true
	}
	return isCardName(v)
}

func resolveInDir(dir, name string) string {
	if dir == "" {
		return ""
	}
	for _, cand := range []string{name, name + ".yaml", name + ".yml"} {
		path := filepath.Join(dir, cand)
		if fileExists(path) {
			return path
		}
	}
	return ""
}

func discoverCards(dir string) ([]string, error) {
	st, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("models path is not a directory: %s", dir)
	}
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	cards := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() || !isCardName(e.Name()) {
			continue
		}
		cards = append(cards, filepath.Join(dir, e.Name()))
	}
	slices.Sort(cards)
	return cards, nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}

// lockedScorer serialises Score calls through a lock shared by every scorer
// handed out for the same model.
type lockedScorer struct {
	mu *sync.Mutex
	m  *model.Model
}

func (s *lockedScorer) Score(ctx context.Context, tokens []int) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m.Score(ctx, tokens)
}

func (s *lockedScorer) VocabSize() int { return s.m.VocabSize() }
func (s *lockedScorer) MaxSeqLen() int { return s.m.MaxSeqLen() }
func (s *lockedScorer) Name() string   { return s.m.Name() }
