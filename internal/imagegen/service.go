// Package imagegen handles one image request end to end: authorization,
// parameter normalization, the upstream call and persistence of the results.
package imagegen

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"coloring-pages/internal/apperr"
	"coloring-pages/internal/gpt"
	"coloring-pages/internal/storage"
	"coloring-pages/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// Generator is the upstream image API.
type Generator interface {
	Generate(ctx context.Context, p gpt.GenerateParams) (*gpt.Result, error)
	Edit(ctx context.Context, p gpt.EditParams) (*gpt.Result, error)
}

type ImageResult struct {
	Filename     string `json:"filename"`
	B64JSON      string `json:"b64_json"`
	Path         string `json:"path,omitempty"`
	OutputFormat string `json:"output_format"`
}

type Response struct {
	Images []ImageResult `json:"images"`
	Usage  *gpt.Usage    `json:"usage,omitempty"`
}

type Options struct {
	Generator       Generator
	Stores          map[storage.Mode]storage.Store
	StorageMode     string
	PlatformManaged bool
	AppPassword     string
	Logger          *logger.Logger
	Now             func() time.Time
}

type Service struct {
	gen             Generator
	stores          map[storage.Mode]storage.Store
	storageMode     string
	platformManaged bool
	passwordHash    string
	log             *logger.Logger
	now             func() time.Time
}

func NewService(opts Options) (*Service, error) {
	if opts.Generator == nil {
		return nil, errors.New("image generator is required")
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	stores := make(map[storage.Mode]storage.Store, len(opts.Stores)+1)
	for mode, st := range opts.Stores {
		stores[mode] = st
	}
	if _, ok := stores[storage.ModeMemory]; !ok {
		stores[storage.ModeMemory] = storage.MemoryStore{}
	}

	s := &Service{
		gen:             opts.Generator,
		stores:          stores,
		storageMode:     opts.StorageMode,
		platformManaged: opts.PlatformManaged,
		log:             opts.Logger,
		now:             opts.Now,
	}
	if opts.AppPassword != "" {
		s.passwordHash = HashPassword(opts.AppPassword)
	}
	return s, nil
}

func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// Authorize checks the client's password hash when a shared password is set.
func (s *Service) Authorize(clientHash string) error {
	if s.passwordHash == "" {
		return nil
	}
	clientHash = strings.ToLower(strings.TrimSpace(clientHash))
	if clientHash == "" {
		return apperr.Unauthorized("Unauthorized: Missing password hash.")
	}
	if subtle.ConstantTimeCompare([]byte(clientHash), []byte(s.passwordHash)) != 1 {
		return apperr.Unauthorized("Unauthorized: Invalid password.")
	}
	return nil
}

// Handle runs one request. Nothing reaches the upstream API unless the caller
// is authorized and the input is valid, and no partial result is returned.
func (s *Service) Handle(ctx context.Context, raw RawForm) (*Response, error) {
	if err := s.Authorize(raw.PasswordHash); err != nil {
		s.log.Warnw("image request rejected", "reason", apperr.Message(err))
		return nil, err
	}

	req, warnings, err := Normalize(raw)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		s.log.Warnw("image request input ignored", "detail", w)
	}

	mode := storage.ResolveMode(s.storageMode, s.platformManaged)
	store, ok := s.stores[mode]
	if !ok {
		return nil, &apperr.Error{
			Kind:    apperr.KindUnavailable,
			Code:    apperr.CodeStorageUnavailable,
			Message: fmt.Sprintf("storage mode %q is not configured", mode),
		}
	}
	if p, ok := store.(storage.Preparer); ok {
		if err := p.Prepare(ctx); err != nil {
			return nil, err
		}
	}

	s.log.Infow("calling image api",
		"mode", req.Mode,
		"coloring_page", req.ColoringPage,
		"count", req.Count,
		"size", req.Size,
		"images", len(req.Images),
		"storage", mode,
	)

	result, err := s.dispatch(ctx, req)
	if err != nil {
		return nil, err
	}

	images, err := s.persist(ctx, store, req.OutputFormat, result)
	if err != nil {
		return nil, err
	}

	s.log.Infow("image request completed", "images", len(images), "storage", mode)
	return &Response{Images: images, Usage: result.Usage}, nil
}

func (s *Service) dispatch(ctx context.Context, req Request) (*gpt.Result, error) {
	if req.Mode == ModeGenerate {
		return s.gen.Generate(ctx, gpt.GenerateParams{
			Prompt:            req.Prompt,
			Count:             req.Count,
			Size:              req.Size,
			Quality:           req.Quality,
			Background:        req.Background,
			Moderation:        req.Moderation,
			OutputFormat:      string(req.OutputFormat),
			OutputCompression: req.OutputCompression,
		})
	}

	edit := gpt.EditParams{
		Prompt:  req.Prompt,
		Count:   req.Count,
		Size:    req.Size,
		Quality: req.Quality,
		Images:  make([]gpt.Upload, 0, len(req.Images)),
	}
	for _, img := range req.Images {
		edit.Images = append(edit.Images, gpt.Upload(img))
	}
	if req.Mask != nil {
		mask := gpt.Upload(*req.Mask)
		edit.Mask = &mask
	}
	return s.gen.Edit(ctx, edit)
}

// persist decodes every result before writing any of them, then writes in
// parallel. Entries keep their upstream order.
func (s *Service) persist(ctx context.Context, store storage.Store, format OutputFormat, result *gpt.Result) ([]ImageResult, error) {
	if result == nil || len(result.Images) == 0 {
		return nil, apperr.Integrity(apperr.CodeUpstreamEmptyResult, "Failed to retrieve image data from API.")
	}

	decoded := make([][]byte, len(result.Images))
	for i, img := range result.Images {
		if img.B64JSON == "" {
			s.log.Errorw("image result missing data", "index", i)
			return nil, apperr.Integrity(apperr.CodeMissingImageData, fmt.Sprintf("Image data at index %d is missing base64 data.", i))
		}
		data, err := base64.StdEncoding.DecodeString(img.B64JSON)
		if err != nil {
			return nil, &apperr.Error{
				Kind:    apperr.KindIntegrity,
				Code:    apperr.CodeMissingImageData,
				Message: fmt.Sprintf("Image data at index %d is not valid base64.", i),
				Err:     err,
			}
		}
		decoded[i] = data
	}

	stamp := s.now().UnixMilli()
	out := make([]ImageResult, len(result.Images))
	g, gctx := errgroup.WithContext(ctx)
	for i := range result.Images {
		g.Go(func() error {
			filename := fmt.Sprintf("%d-%d.%s", stamp, i, format)
			path, err := store.Save(gctx, storage.Object{
				Filename:    filename,
				ContentType: storage.ContentTypeFor(string(format)),
				Data:        decoded[i],
			})
			if err != nil {
				return fmt.Errorf("save %s: %w", filename, err)
			}
			out[i] = ImageResult{
				Filename:     filename,
				B64JSON:      result.Images[i].B64JSON,
				Path:         path,
				OutputFormat: string(format),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.log.Errorw("failed to store images", "error", err)
		return nil, err
	}
	return out, nil
}
