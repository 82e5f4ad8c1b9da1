package vcfio

import (
	"compress/gzip"
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/openvariant/tranchefilter/internal/resilience"
)

const ftpTimeout = 30 * time.Second

// Open resolves path to a byte stream. Local paths and ftp://, gs://,
// http:// and https:// URLs are supported; a ".gz" name gets transparent
// gzip decompression. Remote opens retry on transient failures. The caller
// must close the returned reader.
func Open(ctx context.Context, path string) (io.ReadCloser, error) {
	var (
		rc  io.ReadCloser
		err error
	)
	switch {
	case strings.HasPrefix(path, "ftp://"):
		rc, err = openRemote(ctx, "ftp", path, openFTP)
	case strings.HasPrefix(path, "gs://"):
		rc, err = openRemote(ctx, "gs", path, openGCS)
	case strings.HasPrefix(path, "http://"), strings.HasPrefix(path, "https://"):
		rc, err = openRemote(ctx, "http", path, openHTTP)
	default:
		rc, err = os.Open(path)
		if err != nil {
			err = eris.Wrapf(err, "open %s", path)
		}
	}
	if err != nil {
		return nil, err
	}

	if strings.HasSuffix(path, ".gz") {
		zr, err := gzip.NewReader(rc)
		if err != nil {
			rc.Close()
			return nil, eris.Wrapf(err, "gzip %s", path)
		}
		return &gzipReadCloser{zr: zr, under: rc}, nil
	}
	return rc, nil
}

// gzipReadCloser closes both the decompressor and the underlying stream.
type gzipReadCloser struct {
	zr    *gzip.Reader
	under io.ReadCloser
}

func (g *gzipReadCloser) Read(p []byte) (int, error) { return g.zr.Read(p) }

func (g *gzipReadCloser) Close() error {
	zErr := g.zr.Close()
	uErr := g.under.Close()
	if zErr != nil {
		return eris.Wrap(zErr, "close gzip reader")
	}
	if uErr != nil {
		return eris.Wrap(uErr, "close stream")
	}
	return nil
}

// openRemote runs an opener under the shared retry policy. Only errors the
// resilience package classifies as transient are retried.
func openRemote(ctx context.Context, scheme, path string,
	opener func(context.Context, string) (io.ReadCloser, error)) (io.ReadCloser, error) {
	cfg := resilience.DefaultRetryConfig()
	cfg.OnRetry = resilience.RetryLogger(scheme, path)
	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (io.ReadCloser, error) {
		return opener(ctx, path)
	})
}

// ftpReader ties the FTP response to its connection so closing the reader
// also disconnects from the server.
type ftpReader struct {
	resp *ftp.Response
	conn *ftp.ServerConn
}

func (r *ftpReader) Read(p []byte) (int, error) { return r.resp.Read(p) }

func (r *ftpReader) Close() error {
	respErr := r.resp.Close()
	quitErr := r.conn.Quit()
	if respErr != nil {
		return eris.Wrap(respErr, "close ftp response")
	}
	if quitErr != nil {
		return eris.Wrap(quitErr, "quit ftp connection")
	}
	return nil
}

func openFTP(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrap(err, "parse ftp url")
	}
	host := u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}
	if u.Path == "" {
		return nil, eris.New("empty path in ftp url")
	}

	zap.L().Debug("ftp: connecting", zap.String("host", host), zap.String("path", u.Path))

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(ftpTimeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "ftp dial")
	}
	if err := conn.Login("anonymous", "anonymous@"); err != nil {
		conn.Quit()
		return nil, eris.Wrap(err, "ftp login")
	}
	resp, err := conn.Retr(u.Path)
	if err != nil {
		conn.Quit()
		return nil, eris.Wrap(err, "ftp retrieve")
	}
	return &ftpReader{resp: resp, conn: conn}, nil
}

// gcsReader closes the object reader and the client it was opened with.
type gcsReader struct {
	obj    *storage.Reader
	client *storage.Client
}

func (r *gcsReader) Read(p []byte) (int, error) { return r.obj.Read(p) }

func (r *gcsReader) Close() error {
	objErr := r.obj.Close()
	clientErr := r.client.Close()
	if objErr != nil {
		return eris.Wrap(objErr, "close object reader")
	}
	if clientErr != nil {
		return eris.Wrap(clientErr, "close storage client")
	}
	return nil
}

func openGCS(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	bucket, object, ok := strings.Cut(strings.TrimPrefix(rawURL, "gs://"), "/")
	if !ok || bucket == "" || object == "" {
		return nil, eris.Errorf("malformed gs url %q", rawURL)
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "create storage client")
	}
	obj, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		client.Close()
		if eris.Is(err, storage.ErrObjectNotExist) {
			return nil, eris.Wrapf(err, "gs://%s/%s does not exist", bucket, object)
		}
		return nil, eris.Wrapf(err, "open gs://%s/%s", bucket, object)
	}
	return &gcsReader{obj: obj, client: client}, nil
}

func openHTTP(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "build request for %s", rawURL)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "get %s", rawURL)
	}
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		statusErr := eris.Errorf("get %s: status %s", rawURL, resp.Status)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(statusErr)
		}
		return nil, statusErr
	}
	return resp.Body, nil
}
