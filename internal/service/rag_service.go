package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"docchat/internal/answer"
	"docchat/internal/domain"
	"docchat/internal/embedding"
	"docchat/internal/extractor"
	"docchat/internal/index"
	"docchat/internal/vectorstore"
)

const DefaultTopK = 4

// documentNamespace scopes document identities.
var documentNamespace = uuid.MustParse("0b5d3c8e-9a41-4e27-8f6d-51c2a7e4b913")

// DocumentID derives a stable identity from a file name and its content.
func DocumentID(name string, data []byte) string {
	buf := make([]byte, 0, len(name)+1+len(data))
	buf = append(buf, name...)
	buf = append(buf, 0)
	buf = append(buf, data...)
	return uuid.NewSHA1(documentNamespace, buf).String()
}

type Options struct {
	Extractor  *extractor.Extractor
	Chunker    domain.Chunker
	Embedder   embedding.Embedder
	Store      vectorstore.Storage
	Summarizer domain.Summarizer
	Answerer   *answer.Answerer
	TopK       int
	BatchSize  int
	// UseHistory sends the whole conversation with every question.
	UseHistory bool
	Logger     *zerolog.Logger
}

// RAGService holds the state of one chat session over one document.
type RAGService struct {
	opts Options
	log  zerolog.Logger

	mu       sync.Mutex
	docID    string
	docName  string
	idx      *index.Index
	chunks   []domain.Chunk
	turns    []domain.Turn
	pending  string
	inFlight bool
}

func NewRAGService(opts Options) *RAGService {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	return &RAGService{opts: opts, log: log}
}

// LoadFile reads path and loads it as the session document.
func (s *RAGService) LoadFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrExtraction, path, err)
	}
	return s.LoadDocument(ctx, filepath.Base(path), data)
}

// LoadDocument replaces the session document. Loading the same name and
// content again is a no-op. Any previous index, chunks and conversation are
// dropped before the new document is processed.
func (s *RAGService) LoadDocument(ctx context.Context, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return domain.ErrBusy
	}
	id := DocumentID(name, data)
	if id == s.docID && s.idx != nil {
		s.log.Debug().Str("document", name).Msg("document unchanged")
		return nil
	}
	s.invalidateLocked(ctx)

	start := time.Now()
	units, err := s.opts.Extractor.Extract(ctx, name, data)
	if err != nil {
		return err
	}
	chunks, err := s.opts.Chunker.Split(units)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return fmt.Errorf("%w: %s has no content", domain.ErrExtraction, name)
	}
	for i := range chunks {
		chunks[i].ID = fmt.Sprintf("%s:%d", id, chunks[i].Seq)
	}
	idx, err := index.Build(ctx, s.opts.Embedder, s.opts.Store, chunks, index.Options{
		BatchSize: s.opts.BatchSize,
		Logger:    &s.log,
	})
	if err != nil {
		return err
	}

	s.docID = id
	s.docName = name
	s.idx = idx
	s.chunks = chunks
	s.log.Info().
		Str("document", name).
		Str("id", id).
		Int("units", len(units)).
		Int("chunks", len(chunks)).
		Dur("took", time.Since(start)).
		Msg("document loaded")
	return nil
}

// Remove drops the document and all state derived from it.
func (s *RAGService) Remove(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return domain.ErrBusy
	}
	s.invalidateLocked(ctx)
	return nil
}

func (s *RAGService) invalidateLocked(ctx context.Context) {
	if s.idx != nil {
		if err := s.idx.Close(ctx); err != nil {
			s.log.Warn().Err(err).Str("document", s.docName).Msg("close index")
		}
	}
	s.docID = ""
	s.docName = ""
	s.idx = nil
	s.chunks = nil
	s.turns = nil
	s.pending = ""
}

// ClearConversation drops the turns but keeps the document.
func (s *RAGService) ClearConversation() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return domain.ErrBusy
	}
	s.turns = nil
	return nil
}

func (s *RAGService) Summarize(ctx context.Context) (string, error) {
	s.mu.Lock()
	chunks := s.chunks
	s.mu.Unlock()
	if len(chunks) == 0 {
		return "", domain.ErrNoDocument
	}
	if s.opts.Summarizer == nil {
		return "", fmt.Errorf("%w: no summarizer configured", domain.ErrSummarization)
	}
	return s.opts.Summarizer.Summarize(ctx, chunks)
}

func (s *RAGService) Search(ctx context.Context, query string, k int) ([]domain.SearchResult, error) {
	s.mu.Lock()
	idx := s.idx
	s.mu.Unlock()
	if idx == nil {
		return nil, domain.ErrNoDocument
	}
	return idx.Search(ctx, query, k)
}

// Ask starts answering question. Only one question may stream at a time;
// the session is released when the returned Reply ends or is closed.
func (s *RAGService) Ask(ctx context.Context, question string) (*Reply, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, errors.New("empty question")
	}
	if s.opts.Answerer == nil {
		return nil, fmt.Errorf("%w: no answer backend configured", domain.ErrAnswer)
	}
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return nil, domain.ErrBusy
	}
	if s.idx == nil {
		s.mu.Unlock()
		return nil, domain.ErrNoDocument
	}
	s.inFlight = true
	s.pending = question
	s.turns = append(s.turns, domain.Turn{Role: domain.RoleUser, Content: question, At: time.Now()})
	idx := s.idx
	turns := append([]domain.Turn(nil), s.turns...)
	s.mu.Unlock()

	results, err := idx.Search(ctx, question, s.opts.TopK)
	if err != nil {
		s.release("")
		return nil, err
	}
	relevant := make([]domain.Chunk, 0, len(results))
	for _, r := range results {
		relevant = append(relevant, r.Chunk)
	}
	relevant = append(relevant, idx.Images()...)

	var stream *answer.Stream
	if s.opts.UseHistory {
		stream, err = s.opts.Answerer.Converse(ctx, turns, relevant)
	} else {
		stream, err = s.opts.Answerer.Answer(ctx, question, relevant)
	}
	if err != nil {
		s.release("")
		return nil, err
	}
	s.log.Debug().Int("sources", len(results)).Int("images", len(relevant)-len(results)).Msg("answer started")
	return &Reply{session: s, stream: stream, sources: results}, nil
}

// release records the assistant turn, if any, and frees the session.
func (s *RAGService) release(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if text != "" {
		s.turns = append(s.turns, domain.Turn{Role: domain.RoleAssistant, Content: text, At: time.Now()})
	}
	s.inFlight = false
	s.pending = ""
}

func (s *RAGService) Turns() []domain.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Turn(nil), s.turns...)
}

func (s *RAGService) Chunks() []domain.Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Chunk(nil), s.chunks...)
}

func (s *RAGService) DocumentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docID
}

func (s *RAGService) DocumentName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docName
}

// Pending returns the question currently being answered, if any.
func (s *RAGService) Pending() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Reply is a streaming answer bound to its session. Recv and Collect belong
// to one goroutine; Close may be called from another to stop a blocked Recv.
type Reply struct {
	session *RAGService
	stream  *answer.Stream
	sources []domain.SearchResult
	once    sync.Once

	mu    sync.Mutex
	text  strings.Builder
	ended bool
}

// Recv returns the next fragment. io.EOF ends the reply; other errors end
// it too, keeping the text received so far in the conversation.
func (r *Reply) Recv() (string, error) {
	frag, err := r.stream.Recv()
	if err != nil {
		r.finish()
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ended {
		return "", io.EOF
	}
	r.text.WriteString(frag)
	return frag, nil
}

// Close stops the reply early.
func (r *Reply) Close() error {
	err := r.stream.Close()
	r.finish()
	return err
}

func (r *Reply) finish() {
	r.once.Do(func() {
		r.mu.Lock()
		r.ended = true
		text := r.text.String()
		r.mu.Unlock()
		r.session.release(text)
	})
}

// Text returns the answer received so far.
func (r *Reply) Text() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.text.String()
}

// Sources returns the retrieved text chunks the answer is grounded on.
func (r *Reply) Sources() []domain.SearchResult { return r.sources }

// Collect drains the reply, calling onFragment for each fragment.
func (r *Reply) Collect(onFragment func(string)) (string, error) {
	for {
		frag, err := r.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return r.Text(), nil
			}
			return r.Text(), err
		}
		if onFragment != nil {
			onFragment(frag)
		}
	}
}
