package download

// progressWriter discards data but counts it, so it can sit at the end of an io.MultiWriter to report progress.
type progressWriter struct {
	name       string
	expected   int64
	downloaded int64
	callback   ProgressFunc
}

func newProgressWriter(name string, expected int64, callback ProgressFunc) *progressWriter {
	return &progressWriter{name: name, expected: expected, callback: callback}
}

func (p *progressWriter) Write(b []byte) (n int, err error) {
	n = len(b)
	p.downloaded += int64(n)
	if p.callback != nil {
		p.callback(p.name, p.downloaded, p.expected)
	}
	return n, nil
}
