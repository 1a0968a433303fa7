package plan

// Chunk is a half-open byte range [Start, End) of the target resource,
// assigned to exactly one fetcher.
type Chunk struct {
	ID    int
	Start int64
	End   int64
}

// Length returns the number of bytes covered by the chunk.
func (c Chunk) Length() int64 {
	return c.End - c.Start
}

// Plan divides totalLength into up to workers contiguous chunks. The
// last chunk absorbs the integer-division remainder so the chunks
// cover [0, totalLength) exactly, with no gaps or overlaps. A worker
// count below 1 is treated as 1, and the chunk count is reduced when
// totalLength is smaller than the worker count so no chunk is empty.
func Plan(totalLength int64, workers int) []Chunk {
	if totalLength <= 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}
	if int64(workers) > totalLength {
		workers = int(totalLength)
	}
	chunkSize := totalLength / int64(workers)
	chunks := make([]Chunk, 0, workers)
	for i := 0; i < workers; i++ {
		start := int64(i) * chunkSize
		end := start + chunkSize
		if i == workers-1 {
			end = totalLength
		}
		chunks = append(chunks, Chunk{ID: i, Start: start, End: end})
	}
	return chunks
}
