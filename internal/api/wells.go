package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/basekick-labs/welllog/internal/archive"
	"github.com/basekick-labs/welllog/internal/catalog"
	"github.com/basekick-labs/welllog/internal/config"
	"github.com/basekick-labs/welllog/internal/database"
	"github.com/basekick-labs/welllog/internal/las"
	"github.com/basekick-labs/welllog/internal/metrics"
	"github.com/basekick-labs/welllog/internal/storage"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// WellsHandler serves LAS uploads and projections of stored wells.
type WellsHandler struct {
	parser   *las.Parser
	store    storage.Backend
	catalog  *catalog.Catalog
	archiver *archive.Writer
	stats    *database.StatsService
	upload   config.UploadConfig
	logger   zerolog.Logger
}

// WellsConfig wires a WellsHandler. Catalog, Archiver and Stats may be nil
// when the corresponding feature is disabled.
type WellsConfig struct {
	Parser   *las.Parser
	Storage  storage.Backend
	Catalog  *catalog.Catalog
	Archiver *archive.Writer
	Stats    *database.StatsService
	Upload   config.UploadConfig
	Logger   zerolog.Logger
}

// NewWellsHandler creates a handler from cfg.
func NewWellsHandler(cfg *WellsConfig) *WellsHandler {
	parser := cfg.Parser
	if parser == nil {
		parser = las.NewParser(las.DefaultOptions())
	}
	upload := cfg.Upload
	if len(upload.AllowedExtensions) == 0 {
		upload.AllowedExtensions = []string{".las"}
	}
	if upload.DefaultMaxCurves == 0 {
		upload.DefaultMaxCurves = 40
	}
	if upload.DefaultThin == 0 {
		upload.DefaultThin = 12
	}
	if upload.MaxFileSize <= 0 {
		upload.MaxFileSize = 100_000_000
	}

	return &WellsHandler{
		parser:   parser,
		store:    cfg.Storage,
		catalog:  cfg.Catalog,
		archiver: cfg.Archiver,
		stats:    cfg.Stats,
		upload:   upload,
		logger:   cfg.Logger.With().Str("component", "wells").Logger(),
	}
}

// RegisterRoutes registers the well and projection routes.
func (h *WellsHandler) RegisterRoutes(app *fiber.App) {
	app.Post("/api/v1/project", h.handleProject)

	wells := app.Group("/api/v1/wells")
	wells.Post("/", h.handleUpload)
	wells.Get("/", h.handleList)
	wells.Get("/:id", h.handleGet)
	wells.Get("/:id/projection", h.handleProjection)
	wells.Get("/:id/depth", h.handleDepth)
	wells.Get("/:id/curves", h.handleCurves)
	wells.Get("/:id/curves/:mnemonic", h.handleSeries)
	wells.Get("/:id/stats", h.handleStats)
	wells.Delete("/:id", h.handleDelete)
}

// uploadResponse is returned by POST /api/v1/wells.
type uploadResponse struct {
	ID          string          `json:"id"`
	FileName    string          `json:"file_name"`
	WellName    string          `json:"well_name,omitempty"`
	Curves      int             `json:"curves"`
	Samples     int             `json:"samples"`
	Warnings    []string        `json:"warnings"`
	ArchivePath string          `json:"archive_path,omitempty"`
	Projection  json.RawMessage `json:"projection"`
}

func errorJSON(c *fiber.Ctx, status int, format string, args ...interface{}) error {
	return c.Status(status).JSON(fiber.Map{
		"error": fmt.Sprintf(format, args...),
	})
}

// projectionParams reads max_curves and thin, falling back to the
// configured defaults.
func (h *WellsHandler) projectionParams(c *fiber.Ctx) (maxCurves, thin int, err error) {
	maxCurves, err = intQuery(c, "max_curves", h.upload.DefaultMaxCurves)
	if err != nil {
		return 0, 0, err
	}
	thin, err = intQuery(c, "thin", h.upload.DefaultThin)
	if err != nil {
		return 0, 0, err
	}
	return maxCurves, thin, nil
}

func intQuery(c *fiber.Ctx, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q is not an integer", key, raw)
	}
	return v, nil
}

// parse runs the parser with timing and metrics. strict overrides the
// configured strictness when set.
func (h *WellsHandler) parse(data []byte, strict bool) (*las.WellDocument, error) {
	parser := h.parser
	if strict && !parser.Options().Strict {
		opts := parser.Options()
		opts.Strict = true
		parser = las.NewParser(opts)
	}

	m := metrics.Get()
	start := time.Now()
	doc, err := parser.ParseBytes(data)
	if err != nil {
		m.IncParseErrors()
		return nil, err
	}

	table := doc.Data()
	m.RecordParse(table.CurveCount, table.SampleCount, len(doc.Warnings()),
		table.InvalidTokens, table.DroppedTokens, time.Since(start).Microseconds())
	return doc, nil
}

// handleUpload accepts a multipart "file" field holding a LAS file,
// optionally gzip or zstd compressed.
func (h *WellsHandler) handleUpload(c *fiber.Ctx) error {
	m := metrics.Get()
	m.IncUploads()

	fileHeader, err := c.FormFile("file")
	if err != nil {
		m.IncUploadsRejected()
		return errorJSON(c, fiber.StatusBadRequest, "no file uploaded: expected multipart field \"file\"")
	}
	if fileHeader.Size == 0 {
		m.IncUploadsRejected()
		return errorJSON(c, fiber.StatusBadRequest, "uploaded file is empty")
	}

	fileName := strings.TrimSpace(fileHeader.Filename)
	if fileName == "" {
		m.IncUploadsRejected()
		return errorJSON(c, fiber.StatusBadRequest, "uploaded file has no name")
	}
	if !hasAllowedExtension(fileName, h.upload.AllowedExtensions) {
		m.IncUploadsRejected()
		return errorJSON(c, fiber.StatusUnsupportedMediaType, "unsupported file type %q: allowed extensions are %s",
			fileName, strings.Join(h.upload.AllowedExtensions, ", "))
	}
	if fileHeader.Size > h.upload.MaxFileSize {
		m.IncUploadsRejected()
		return errorJSON(c, fiber.StatusRequestEntityTooLarge, "file is %d bytes, the limit is %d bytes",
			fileHeader.Size, h.upload.MaxFileSize)
	}

	maxCurves, thin, err := h.projectionParams(c)
	if err != nil {
		m.IncUploadsRejected()
		return errorJSON(c, fiber.StatusBadRequest, "%s", err.Error())
	}

	f, err := fileHeader.Open()
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "failed to open upload: %v", err)
	}
	raw, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "failed to read upload: %v", err)
	}
	m.IncUploadBytes(int64(len(raw)))

	data, err := h.decode(raw)
	if err != nil {
		m.IncUploadsRejected()
		if errors.Is(err, errTooLarge) {
			return errorJSON(c, fiber.StatusRequestEntityTooLarge, "decompressed file exceeds the %d byte limit", h.upload.MaxFileSize)
		}
		return errorJSON(c, fiber.StatusBadRequest, "%s", err.Error())
	}

	doc, err := h.parse(data, c.QueryBool("strict"))
	if err != nil {
		h.logger.Warn().Err(err).Str("file_name", fileName).Msg("Rejected unparseable LAS file")
		return errorJSON(c, fiber.StatusUnprocessableEntity, "%s", err.Error())
	}

	projection, err := las.ProjectToJSON(doc, maxCurves, thin)
	if err != nil {
		return errorJSON(c, fiber.StatusUnprocessableEntity, "%s", err.Error())
	}

	ctx := c.UserContext()
	wellID := catalog.NewID()
	storedName := stripCompressionSuffix(fileName)
	rawPath := storage.RawPath(wellID, storedName)

	if err := h.store.Write(ctx, rawPath, data); err != nil {
		h.logger.Error().Err(err).Str("well_id", wellID).Str("path", rawPath).Msg("Failed to store upload")
		return errorJSON(c, fiber.StatusInternalServerError, "failed to store upload: %v", err)
	}

	archivePath := h.archive(ctx, wellID, doc)

	table := doc.Data()
	if h.catalog != nil {
		well := &catalog.Well{
			ID:          wellID,
			FileName:    storedName,
			WellName:    doc.WellName(),
			CurveCount:  table.CurveCount,
			SampleCount: table.SampleCount,
			Warnings:    len(doc.Warnings()),
			SizeBytes:   int64(len(data)),
			RawPath:     rawPath,
			ArchivePath: archivePath,
		}
		if err := h.catalog.Insert(ctx, well); err != nil {
			h.logger.Error().Err(err).Str("well_id", wellID).Msg("Failed to record well")
			if _, cleanupErr := storage.DeleteWell(ctx, h.store, wellID); cleanupErr != nil {
				h.logger.Warn().Err(cleanupErr).Str("well_id", wellID).Msg("Failed to clean up objects of unrecorded well")
			}
			return errorJSON(c, fiber.StatusInternalServerError, "failed to record well: %v", err)
		}
	}

	m.IncProjections(int64(len(projection)))

	h.logger.Info().
		Str("well_id", wellID).
		Str("file_name", storedName).
		Int("curves", table.CurveCount).
		Int("samples", table.SampleCount).
		Int("warnings", len(doc.Warnings())).
		Msg("Well uploaded")

	return c.Status(fiber.StatusCreated).JSON(uploadResponse{
		ID:          wellID,
		FileName:    storedName,
		WellName:    doc.WellName(),
		Curves:      table.CurveCount,
		Samples:     table.SampleCount,
		Warnings:    doc.Warnings(),
		ArchivePath: archivePath,
		Projection:  json.RawMessage(projection),
	})
}

// decode decompresses a payload and enforces the upload size ceiling.
func (h *WellsHandler) decode(raw []byte) ([]byte, error) {
	if compression(raw) == "" {
		if int64(len(raw)) > h.upload.MaxFileSize {
			return nil, errTooLarge
		}
		return raw, nil
	}
	data, err := decompress(raw, h.upload.MaxFileSize)
	if err != nil {
		return nil, err
	}
	metrics.Get().IncUploadsDecompressed()
	return data, nil
}

// archive writes the Parquet copy of doc and returns its path, or "" when
// archiving is disabled or failed. Failures are logged, not returned.
func (h *WellsHandler) archive(ctx context.Context, wellID string, doc *las.WellDocument) string {
	if h.archiver == nil || doc.Data().CurveCount == 0 {
		return ""
	}

	m := metrics.Get()
	data, err := h.archiver.WriteParquet(doc)
	if err != nil {
		m.IncArchiveErrors()
		h.logger.Error().Err(err).Str("well_id", wellID).Msg("Failed to encode Parquet archive")
		return ""
	}

	path := storage.ArchivePath(wellID)
	if err := h.store.Write(ctx, path, data); err != nil {
		m.IncArchiveErrors()
		h.logger.Error().Err(err).Str("well_id", wellID).Str("path", path).Msg("Failed to store Parquet archive")
		return ""
	}

	m.IncArchiveWrites(int64(len(data)))
	return path
}

// handleProject parses a LAS body and returns its projection without
// storing anything.
func (h *WellsHandler) handleProject(c *fiber.Ctx) error {
	body := c.Body()
	if len(body) == 0 {
		return errorJSON(c, fiber.StatusBadRequest, "request body is empty")
	}

	maxCurves, thin, err := h.projectionParams(c)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "%s", err.Error())
	}

	data, err := h.decode(body)
	if err != nil {
		if errors.Is(err, errTooLarge) {
			return errorJSON(c, fiber.StatusRequestEntityTooLarge, "payload exceeds the %d byte limit", h.upload.MaxFileSize)
		}
		return errorJSON(c, fiber.StatusBadRequest, "%s", err.Error())
	}

	doc, err := h.parse(data, c.QueryBool("strict"))
	if err != nil {
		return errorJSON(c, fiber.StatusUnprocessableEntity, "%s", err.Error())
	}
	return h.sendProjection(c, doc, maxCurves, thin)
}

// sendProjection writes the projection as JSON, or msgpack when the client
// accepts it.
func (h *WellsHandler) sendProjection(c *fiber.Ctx, doc *las.WellDocument, maxCurves, thin int) error {
	p, err := las.Project(doc, maxCurves, thin)
	if err != nil {
		return errorJSON(c, fiber.StatusUnprocessableEntity, "%s", err.Error())
	}

	if !acceptsMsgPack(c) {
		return sendJSON(c, p.AppendJSON(nil))
	}

	data, err := archive.EncodeProjection(p)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "%s", err.Error())
	}
	m := metrics.Get()
	m.IncMsgPackProjections()
	m.IncProjections(int64(len(data)))
	c.Set(fiber.HeaderContentType, archive.MsgPackContentType)
	return c.Send(data)
}

func acceptsMsgPack(c *fiber.Ctx) bool {
	return strings.Contains(c.Get(fiber.HeaderAccept), archive.MsgPackContentType)
}

// sendJSON writes an already rendered projection.
func sendJSON(c *fiber.Ctx, data []byte) error {
	metrics.Get().IncProjections(int64(len(data)))
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(data)
}

func (h *WellsHandler) requireCatalog(c *fiber.Ctx) bool {
	if h.catalog == nil {
		_ = errorJSON(c, fiber.StatusServiceUnavailable, "well catalog is disabled")
		return false
	}
	return true
}

// loadWell fetches the catalog entry and re-parses the stored file. When ok
// is false the error response has already been written.
func (h *WellsHandler) loadWell(c *fiber.Ctx) (*catalog.Well, *las.WellDocument, bool) {
	if !h.requireCatalog(c) {
		return nil, nil, false
	}

	ctx := c.UserContext()
	id := c.Params("id")

	well, err := h.catalog.Get(ctx, id)
	if errors.Is(err, catalog.ErrNotFound) {
		_ = errorJSON(c, fiber.StatusNotFound, "well %s not found", id)
		return nil, nil, false
	}
	if err != nil {
		_ = errorJSON(c, fiber.StatusInternalServerError, "%s", err.Error())
		return nil, nil, false
	}

	data, err := h.store.Read(ctx, well.RawPath)
	if errors.Is(err, storage.ErrNotFound) {
		_ = errorJSON(c, fiber.StatusNotFound, "stored file for well %s is missing", id)
		return nil, nil, false
	}
	if err != nil {
		_ = errorJSON(c, fiber.StatusInternalServerError, "failed to read stored file: %v", err)
		return nil, nil, false
	}

	doc, err := h.parse(data, false)
	if err != nil {
		_ = errorJSON(c, fiber.StatusUnprocessableEntity, "%s", err.Error())
		return nil, nil, false
	}
	return well, doc, true
}

func (h *WellsHandler) handleList(c *fiber.Ctx) error {
	if !h.requireCatalog(c) {
		return nil
	}

	limit, err := intQuery(c, "limit", 100)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "%s", err.Error())
	}
	offset, err := intQuery(c, "offset", 0)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "%s", err.Error())
	}

	wells, err := h.catalog.List(c.UserContext(), limit, offset)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "%s", err.Error())
	}
	total, err := h.catalog.Count(c.UserContext())
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "%s", err.Error())
	}

	return c.JSON(fiber.Map{
		"wells":  wells,
		"count":  len(wells),
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (h *WellsHandler) handleGet(c *fiber.Ctx) error {
	var (
		kind   las.SegmentKind
		filter = c.Query("segment")
	)
	if filter != "" {
		if err := kind.UnmarshalText([]byte(strings.ToLower(filter))); err != nil {
			return errorJSON(c, fiber.StatusBadRequest, "%s", err.Error())
		}
	}

	well, doc, ok := h.loadWell(c)
	if !ok {
		return nil
	}

	segments := doc.Segments()
	if filter != "" {
		matching := make([]las.HeaderSegment, 0, 1)
		for _, seg := range segments {
			if seg.Kind == kind {
				matching = append(matching, seg)
			}
		}
		segments = matching
	}

	return c.JSON(fiber.Map{
		"well":     well,
		"segments": segments,
		"curves":   doc.Curves(),
		"data":     doc.Data(),
		"warnings": doc.Warnings(),
	})
}

func (h *WellsHandler) handleProjection(c *fiber.Ctx) error {
	maxCurves, thin, err := h.projectionParams(c)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "%s", err.Error())
	}
	_, doc, ok := h.loadWell(c)
	if !ok {
		return nil
	}
	return h.sendProjection(c, doc, maxCurves, thin)
}

func (h *WellsHandler) handleDepth(c *fiber.Ctx) error {
	thin, err := intQuery(c, "thin", h.upload.DefaultThin)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "%s", err.Error())
	}
	_, doc, ok := h.loadWell(c)
	if !ok {
		return nil
	}
	if acceptsMsgPack(c) {
		return h.sendProjection(c, doc, 1, thin)
	}

	out, err := las.ProjectDepthJSON(doc, thin)
	if err != nil {
		return errorJSON(c, fiber.StatusUnprocessableEntity, "%s", err.Error())
	}
	return sendJSON(c, []byte(out))
}

func (h *WellsHandler) handleCurves(c *fiber.Ctx) error {
	well, doc, ok := h.loadWell(c)
	if !ok {
		return nil
	}
	return c.JSON(fiber.Map{
		"well_id": well.ID,
		"curves":  doc.Curves(),
		"samples": doc.Data().SampleCount,
	})
}

// handleSeries returns one curve as depth/value pairs, keeping every thin-th
// sample.
func (h *WellsHandler) handleSeries(c *fiber.Ctx) error {
	thin, err := intQuery(c, "thin", 1)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "%s", err.Error())
	}
	if thin < 1 {
		thin = 1
	}

	well, doc, ok := h.loadWell(c)
	if !ok {
		return nil
	}

	mnemonic := c.Params("mnemonic")
	series, err := doc.Series(mnemonic)
	if err != nil {
		return errorJSON(c, fiber.StatusNotFound, "%s", err.Error())
	}
	if thin > 1 {
		kept := make([]las.DepthSample, 0, len(series)/thin+1)
		for i := 0; i < len(series); i += thin {
			kept = append(kept, series[i])
		}
		series = kept
	}

	return c.JSON(fiber.Map{
		"well_id":  well.ID,
		"mnemonic": mnemonic,
		"thin":     thin,
		"samples":  series,
	})
}

func (h *WellsHandler) handleStats(c *fiber.Ctx) error {
	if !h.requireCatalog(c) {
		return nil
	}
	if h.stats == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, "statistics require archive and database to be enabled")
	}

	id := c.Params("id")
	if _, err := h.catalog.Get(c.UserContext(), id); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return errorJSON(c, fiber.StatusNotFound, "well %s not found", id)
		}
		return errorJSON(c, fiber.StatusInternalServerError, "%s", err.Error())
	}

	stats, err := h.stats.WellStats(c.UserContext(), id)
	if errors.Is(err, storage.ErrNotFound) {
		return errorJSON(c, fiber.StatusNotFound, "well %s has no archive", id)
	}
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "%s", err.Error())
	}

	return c.JSON(fiber.Map{
		"well_id": id,
		"rows":    stats.Rows,
		"curves":  stats.Curves,
	})
}

func (h *WellsHandler) handleDelete(c *fiber.Ctx) error {
	if !h.requireCatalog(c) {
		return nil
	}

	ctx := c.UserContext()
	id := c.Params("id")

	if _, err := h.catalog.Get(ctx, id); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return errorJSON(c, fiber.StatusNotFound, "well %s not found", id)
		}
		return errorJSON(c, fiber.StatusInternalServerError, "%s", err.Error())
	}

	deleted, err := storage.DeleteWell(ctx, h.store, id)
	if err != nil {
		h.logger.Error().Err(err).Str("well_id", id).Msg("Failed to delete well objects")
		return errorJSON(c, fiber.StatusInternalServerError, "failed to delete stored objects: %v", err)
	}
	if err := h.catalog.Delete(ctx, id); err != nil && !errors.Is(err, catalog.ErrNotFound) {
		return errorJSON(c, fiber.StatusInternalServerError, "%s", err.Error())
	}
	if h.stats != nil {
		h.stats.Invalidate(id)
	}

	h.logger.Info().Str("well_id", id).Int("objects_deleted", deleted).Msg("Well deleted")

	return c.JSON(fiber.Map{
		"well_id":         id,
		"objects_deleted": deleted,
	})
}
