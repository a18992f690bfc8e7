package crossbar

import (
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"os"
	"strconv"
	"strings"
)

// FileStreamResult is what a file-stream route handler returns: a byte
// source plus the headers describing it
type FileStreamResult struct {
	// Content supplies the bytes; closed after streaming when it implements
	// io.Closer
	Content io.Reader

	Filename    string
	ContentType string

	// CacheControl overrides the route's declared cache header when non-empty
	CacheControl string

	// TotalLength is the full source size in bytes; required for byte-range
	// support, 0 disables it
	TotalLength int64
}

// DataStreamResult is what a data-stream route handler returns: a lazy,
// single-pass sequence of serializable values written as newline-delimited
// JSON
type DataStreamResult struct {
	// ContentType defaults to application/x-ndjson
	ContentType string

	Items iter.Seq[any]
}

// writeFileStream pipes a byte stream to the response, honoring a single
// byte-range request and the route's declared disposition and cache options
func writeFileStream(c *Context, result any, opts StreamOptions) error {
	fsr, err := asFileStreamResult(result)
	if err != nil {
		return err
	}
	if fsr.Content == nil {
		return ErrNotFound("stream source not found")
	}
	if closer, ok := fsr.Content.(io.Closer); ok {
		defer closer.Close()
	}

	res := c.Response()

	contentType := fsr.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	res.SetHeader("Content-Type", contentType)
	res.SetHeader("Accept-Ranges", "bytes")

	disposition := "attachment"
	if opts.Inline {
		disposition = "inline"
	}
	if fsr.Filename != "" {
		res.SetHeader("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, fsr.Filename))
	} else {
		res.SetHeader("Content-Disposition", disposition)
	}

	cacheControl := opts.CacheControl
	if fsr.CacheControl != "" {
		cacheControl = fsr.CacheControl
	}
	if cacheControl != "" {
		res.SetHeader("Cache-Control", cacheControl)
	}

	rangeHeader := c.Request().Headers.Get("Range")
	if rangeHeader != "" && fsr.TotalLength > 0 {
		return writeByteRange(c, fsr, rangeHeader)
	}

	if fsr.TotalLength > 0 {
		res.SetHeader("Content-Length", strconv.FormatInt(fsr.TotalLength, 10))
	}
	res.Status(http.StatusOK)
	if _, err := io.Copy(res, fsr.Content); err != nil {
		return mapStreamError(err)
	}
	return nil
}

// writeByteRange serves a single-range request. An unsatisfiable range
// answers 416 with a "bytes */total" content range.
func writeByteRange(c *Context, fsr *FileStreamResult, rangeHeader string) error {
	res := c.Response()
	total := fsr.TotalLength

	start, end, ok := parseByteRange(rangeHeader, total)
	if !ok || start < 0 || end >= total || start > end {
		res.SetHeader("Content-Range", fmt.Sprintf("bytes */%d", total))
		res.Status(http.StatusRequestedRangeNotSatisfiable)
		return nil
	}

	if seeker, isSeeker := fsr.Content.(io.Seeker); isSeeker {
		if _, err := seeker.Seek(start, io.SeekStart); err != nil {
			return mapStreamError(err)
		}
	} else if _, err := io.CopyN(io.Discard, fsr.Content, start); err != nil {
		return mapStreamError(err)
	}

	length := end - start + 1
	res.SetHeader("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, total))
	res.SetHeader("Content-Length", strconv.FormatInt(length, 10))
	res.Status(http.StatusPartialContent)
	if _, err := io.CopyN(res, fsr.Content, length); err != nil {
		return mapStreamError(err)
	}
	return nil
}

// parseByteRange parses a single "bytes=start-end" range. An omitted end
// means "through the last byte"; an omitted start means a suffix range of
// the given length. Multi-range requests are not supported.
func parseByteRange(header string, total int64) (start, end int64, ok bool) {
	spec, found := strings.CutPrefix(header, "bytes=")
	if !found || strings.Contains(spec, ",") {
		return 0, 0, false
	}
	startStr, endStr, found := strings.Cut(spec, "-")
	if !found {
		return 0, 0, false
	}

	if startStr == "" {
		// suffix range: last N bytes
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 {
			return 0, 0, false
		}
		if n > total {
			n = total
		}
		return total - n, total - 1, true
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	if endStr == "" {
		return start, total - 1, true
	}
	end, err = strconv.ParseInt(endStr, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return start, end, true
}

// writeDataStream writes each item of a lazy sequence as one JSON line,
// flushing after every item so slow consumers exert backpressure through the
// transport instead of buffering the whole stream
func writeDataStream(c *Context, result any) error {
	dsr, err := asDataStreamResult(result)
	if err != nil {
		return err
	}

	res := c.Response()
	contentType := dsr.ContentType
	if contentType == "" {
		contentType = "application/x-ndjson"
	}
	res.SetHeader("Content-Type", contentType)
	res.Status(http.StatusOK)

	if dsr.Items == nil {
		return nil
	}

	for item := range dsr.Items {
		line, err := json.Marshal(item)
		if err != nil {
			return err
		}
		line = append(line, '\n')
		if _, err := res.Write(line); err != nil {
			// write failure means the client went away; stop producing
			return err
		}
		res.Flush()
	}
	return nil
}

func asFileStreamResult(result any) (*FileStreamResult, error) {
	switch v := result.(type) {
	case *FileStreamResult:
		return v, nil
	case FileStreamResult:
		return &v, nil
	default:
		return nil, fmt.Errorf("file-stream route returned %T instead of a FileStreamResult", result)
	}
}

func asDataStreamResult(result any) (*DataStreamResult, error) {
	switch v := result.(type) {
	case *DataStreamResult:
		return v, nil
	case DataStreamResult:
		return &v, nil
	default:
		return nil, fmt.Errorf("data-stream route returned %T instead of a DataStreamResult", result)
	}
}

// mapStreamError translates byte-source failures: a missing source answers
// 404, anything else propagates with its natural status
func mapStreamError(err error) error {
	if os.IsNotExist(err) {
		return ErrNotFound("stream source not found")
	}
	return err
}
