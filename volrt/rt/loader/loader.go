package loader

import (
	"context"
	"time"

	"github.com/gekko3d/soilvol"
	"github.com/gekko3d/soilvol/volrt/rt/codec"

	"github.com/klauspost/compress/zstd"
)

// Options configures a Loader. Zero values select the defaults.
type Options struct {
	Fetcher  Fetcher
	Observer ResourceObserver
	Logger   soilvol.Logger
}

// Loader fetches volume containers and decodes them with a shared
// decompression engine.
type Loader struct {
	fetcher  Fetcher
	observer ResourceObserver
	logger   soilvol.Logger

	decoder *zstd.Decoder
	codec   *codec.Codec
}

// New prepares the decompression engine. It fails only when the engine
// cannot be created.
func New(opts Options) (*Loader, error) {
	dec, err := codec.NewZstdDecoder()
	if err != nil {
		return nil, err
	}
	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = NewResourceFetcher()
	}
	return &Loader{
		fetcher:  fetcher,
		observer: opts.Observer,
		logger:   soilvol.OrNop(opts.Logger),
		decoder:  dec,
		codec:    codec.New(dec),
	}, nil
}

// Load fetches the whole file at url and decodes it. Fetch failures are
// reported as KindNetwork, codec failures as KindDecode.
func (l *Loader) Load(ctx context.Context, url string) (*codec.Volume, error) {
	start := time.Now()
	data, err := l.fetcher.Fetch(ctx, url)
	if err != nil {
		l.logger.Warnf("fetch %s failed: %v", url, err)
		return nil, &LoadError{Kind: KindNetwork, URL: url, Err: err}
	}
	fetched := time.Since(start)
	if l.observer != nil {
		l.observer.ObserveResource(ResourceTiming{Source: url, Size: int64(len(data)), Duration: fetched})
	}

	vol, err := l.codec.Decode(data)
	if err != nil {
		l.logger.Warnf("decode %s failed: %v", url, err)
		return nil, &LoadError{Kind: KindDecode, URL: url, Err: err}
	}
	l.logger.Debugf("loaded %s: %dx%dx%d, %s compressed, fetch %v, total %v",
		url, vol.Width, vol.Height, vol.Depth, FormatSize(int64(len(data))), fetched, time.Since(start))
	return vol, nil
}

// Close releases the decompression engine. The loader must not be used
// afterwards.
func (l *Loader) Close() {
	if l.decoder != nil {
		l.decoder.Close()
		l.decoder = nil
	}
}
