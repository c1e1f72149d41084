package transferengine

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/qdrop/qdrop/internal/materializer"
	"github.com/qdrop/qdrop/internal/progressx"
	"github.com/qdrop/qdrop/internal/transport"
	"github.com/qdrop/qdrop/pkg/wire"
)

// ReceivePlan bundles what the receiver needs to accept an offer's
// data streams.
type ReceivePlan struct {
	Conn        transport.Connection
	Mat         *materializer.Materializer
	Entries     []wire.FileEntry
	ResumeTable []uint64
	Concurrency int // 0 selects DefaultConcurrency
	ChunkSize   int // 0 selects DefaultChunkSize
	Counter     *progressx.Counter
	Cancel      <-chan struct{}
}

// Receive first materializes every directory entry in offer order (per
// spec.md's invariant 5), then accepts incoming unidirectional streams
// until every pending entry has been written or Cancel fires, returning
// the set of entry indexes left incomplete (for the caller to surface
// as "needs another session").
func Receive(ctx context.Context, plan ReceivePlan) (incomplete []int, err error) {
	for i, e := range plan.Entries {
		if e.IsDir {
			if err := plan.Mat.MakeDir(e.RelativePath); err != nil {
				return nil, fmt.Errorf("transferengine: materialize dir %d (%s): %w", i, e.RelativePath, err)
			}
		}
	}

	pending := pendingIndexSet(plan.Entries, plan.ResumeTable)
	if len(pending) == 0 {
		return nil, nil
	}

	concurrency := plan.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	chunkSize := plan.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	var mu sync.Mutex
	remaining := make(map[int]bool, len(pending))
	for idx := range pending {
		remaining[idx] = true
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	errCh := make(chan error, len(pending))

acceptLoop:
	for accepted := 0; accepted < len(pending); accepted++ {
		select {
		case <-plan.Cancel:
			break acceptLoop
		default:
		}

		stream, aerr := plan.Conn.AcceptUni(ctx)
		if aerr != nil {
			err = fmt.Errorf("transferengine: accept uni stream: %w", aerr)
			break
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(s io.ReadCloser) {
			defer wg.Done()
			defer func() { <-sem }()
			defer s.Close()

			idx, rerr := receiveEntry(s, plan.Entries, plan.ResumeTable, plan.Mat, chunkSize, plan.Counter)
			if rerr != nil {
				errCh <- rerr
				return
			}
			mu.Lock()
			delete(remaining, idx)
			mu.Unlock()
		}(stream)
	}

	wg.Wait()
	close(errCh)

	for e := range errCh {
		if err == nil {
			err = e
		}
	}

	mu.Lock()
	for idx := range remaining {
		incomplete = append(incomplete, idx)
	}
	mu.Unlock()

	if err == nil && len(incomplete) > 0 {
		select {
		case <-plan.Cancel:
			err = ErrCancelled
		default:
		}
	}
	return incomplete, err
}

func receiveEntry(stream io.Reader, entries []wire.FileEntry, resumeTable []uint64, mat *materializer.Materializer, chunkSize int, counter *progressx.Counter) (int, error) {
	var idxBuf [4]byte
	if _, err := io.ReadFull(stream, idxBuf[:]); err != nil {
		return 0, fmt.Errorf("read entry index: %w", err)
	}
	idx := int(binary.BigEndian.Uint32(idxBuf[:]))
	if idx < 0 || idx >= len(entries) {
		return idx, fmt.Errorf("entry index %d out of range", idx)
	}
	entry := entries[idx]

	w, err := mat.OpenForResume(entry.RelativePath, resumeTable[idx], entry.Size)
	if err != nil {
		return idx, fmt.Errorf("open destination for entry %d (%s): %w", idx, entry.RelativePath, err)
	}
	defer w.Close()

	n, err := io.CopyBuffer(w, countingReader{r: stream, counter: counter}, make([]byte, chunkSize))
	if err != nil {
		return idx, fmt.Errorf("write entry %d (%s): %w", idx, entry.RelativePath, err)
	}
	if uint64(n)+resumeTable[idx] != entry.Size {
		return idx, fmt.Errorf("entry %d (%s): got %d bytes, want %d", idx, entry.RelativePath, uint64(n)+resumeTable[idx], entry.Size)
	}
	return idx, nil
}

func pendingIndexSet(entries []wire.FileEntry, resumeTable []uint64) map[int]bool {
	set := make(map[int]bool)
	for i, e := range entries {
		if e.IsDir {
			continue
		}
		if resumeTable[i] < e.Size {
			set[i] = true
		}
	}
	return set
}

// VerifyResume implements the receiver half of spec.md §4.5's integrity
// section: hash the first resumeOffset bytes already on disk at
// destPath and compare against the sender-reported digest. A mismatch
// means resume must be abandoned for this entry.
func VerifyResume(destPath string, resumeOffset uint64, senderDigest []byte) (bool, error) {
	if resumeOffset == 0 {
		return true, nil
	}
	f, err := os.Open(destPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()
	localDigest, err := HashPrefix(f, resumeOffset)
	if err != nil {
		return false, err
	}
	return bytes.Equal(localDigest, senderDigest), nil
}
