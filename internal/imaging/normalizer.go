package imaging

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"

	"artnote-server/internal/models"
)

// Значения по умолчанию для фотографий работ
const (
	DefaultMaxEdge = 1200
	DefaultQuality = 80
	// DefaultMaxPixels - предел заявленного в заголовке размера (ширина*высота).
	// Более крупные изображения не декодируются и остаются исходными байтами.
	DefaultMaxPixels = 50_000_000

	outputContentType = "image/jpeg"
)

var (
	normalizeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "artnote_image_normalize_total",
			Help: "Total number of processed images by outcome.",
		},
		[]string{"status"}, // "success", "fallback"
	)
	normalizeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "artnote_image_normalize_batch_duration_seconds",
		Help:    "Duration of one normalization batch.",
		Buckets: prometheus.DefBuckets,
	})
)

// File - исходный файл, выбранный пользователем.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Result - результат обработки одного файла.
// При ошибке Asset содержит исходные байты, а Err - причину.
type Result struct {
	Asset      models.ImageAsset
	Normalized bool
	Width      int
	Height     int
	Err        error
}

// Normalizer уменьшает и перекодирует изображения батчами.
type Normalizer struct {
	logger    *zap.Logger
	maxPixels int
	decode    func(data []byte) (image.Image, error)
}

// NewNormalizer создает новый Normalizer.
func NewNormalizer(logger *zap.Logger) *Normalizer {
	n := &Normalizer{logger: logger.Named("ImageNormalizer"), maxPixels: DefaultMaxPixels}
	n.decode = n.decodeBounded
	return n
}

// Normalize обрабатывает все файлы батча одновременно и возвращает ровно один
// результат на каждый входной файл в том же порядке. Ошибка одного файла не
// прерывает батч: для него возвращаются исходные байты.
// Порядковые номера (Ordinal) назначает вызывающая сторона.
func (n *Normalizer) Normalize(ctx context.Context, files []File, maxEdge, quality int) []Result {
	if maxEdge <= 0 {
		maxEdge = DefaultMaxEdge
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}

	start := time.Now()
	results := make([]Result, len(files))

	// Задачи не возвращают ошибок: каждая пишет только в свой слот results
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			results[i] = n.normalizeOne(gctx, f, maxEdge, quality)
			return nil
		})
	}
	_ = g.Wait()

	normalizeDuration.Observe(time.Since(start).Seconds())
	n.logger.Debug("Image batch normalized", zap.Int("count", len(files)), zap.Duration("duration", time.Since(start)))
	return results
}

func (n *Normalizer) normalizeOne(ctx context.Context, f File, maxEdge, quality int) Result {
	log := n.logger.With(zap.String("file", f.Name), zap.Int("size_bytes", len(f.Data)))

	data, w, h, err := n.encodeScaled(ctx, f.Data, maxEdge, quality)
	if err != nil {
		log.Warn("Image normalization failed, keeping original bytes", zap.Error(err))
		normalizeTotal.WithLabelValues("fallback").Inc()
		return Result{
			Asset: models.ImageAsset{
				Data:         f.Data,
				ContentType:  f.ContentType,
				OriginalName: f.Name,
			},
			Err: fmt.Errorf("%w: %s: %v", models.ErrCompressionFailed, f.Name, err),
		}
	}

	normalizeTotal.WithLabelValues("success").Inc()
	log.Debug("Image normalized", zap.Int("width", w), zap.Int("height", h), zap.Int("output_bytes", len(data)))
	return Result{
		Asset: models.ImageAsset{
			Data:         data,
			ContentType:  outputContentType,
			OriginalName: f.Name,
		},
		Normalized: true,
		Width:      w,
		Height:     h,
	}
}

// ScaledSize вычисляет размер, при котором длинная сторона не превышает maxEdge.
// Пропорции сохраняются, стороны округляются до ближайшего целого. Увеличение не выполняется.
func ScaledSize(width, height, maxEdge int) (int, int) {
	longest := max(width, height)
	if longest <= maxEdge || longest == 0 {
		return width, height
	}
	scale := float64(maxEdge) / float64(longest)
	w := int(math.Round(float64(width) * scale))
	h := int(math.Round(float64(height) * scale))
	return max(w, 1), max(h, 1)
}

// decodeBounded читает заголовок и отказывает до выделения буфера пикселей,
// если изображение больше maxPixels.
func (n *Normalizer) decodeBounded(data []byte) (image.Image, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid dimensions %dx%d", cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(n.maxPixels) {
		return nil, fmt.Errorf("image %dx%d exceeds %d pixels", cfg.Width, cfg.Height, n.maxPixels)
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	return src, err
}

func (n *Normalizer) encodeScaled(ctx context.Context, data []byte, maxEdge, quality int) ([]byte, int, int, error) {
	if len(data) == 0 {
		return nil, 0, 0, fmt.Errorf("empty file")
	}
	src, err := n.decode(data)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, 0, err
	}

	b := src.Bounds()
	w, h := ScaledSize(b.Dx(), b.Dy(), maxEdge)

	// JPEG не поддерживает прозрачность, подкладываем белый фон
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, 0, 0, fmt.Errorf("encode: %w", err)
	}
	return buf.Bytes(), w, h, nil
}
