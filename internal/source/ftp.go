package source

import (
	"context"
	"net"
	"net/url"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/compare-engine/internal/record"
)

// FTP retrieves one export file over FTP. Credentials come from the URL's
// user info; anonymous login is used otherwise.
type FTP struct {
	name    string
	URL     string
	Format  Format
	Timeout time.Duration
	Options Options
}

// Name implements Source.
func (f *FTP) Name() string { return f.name }

type ftpTarget struct {
	addr, path, user, pass string
}

func parseFTPURL(rawURL string) (ftpTarget, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ftpTarget{}, eris.Wrap(err, "ftp: parse url")
	}
	if u.Scheme != "ftp" {
		return ftpTarget{}, eris.Errorf("ftp: expected ftp scheme, got %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		return ftpTarget{}, eris.New("ftp: url has no file path")
	}

	t := ftpTarget{addr: u.Host, path: u.Path, user: "anonymous", pass: "anonymous@"}
	if _, _, err := net.SplitHostPort(t.addr); err != nil {
		t.addr = net.JoinHostPort(u.Host, "21")
	}
	if u.User != nil {
		t.user = u.User.Username()
		t.pass, _ = u.User.Password()
	}
	return t, nil
}

// Load implements Source.
func (f *FTP) Load(ctx context.Context) ([]record.Raw, error) {
	target, err := parseFTPURL(f.URL)
	if err != nil {
		return nil, err
	}
	format := f.Format
	if format == "" {
		format = DetectFormat(target.path, "")
	}
	if format == "" {
		return nil, eris.Errorf("ftp: cannot detect format of %s", target.path)
	}
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	zap.L().Debug("ftp: connecting", zap.String("addr", target.addr), zap.String("path", target.path))
	conn, err := ftp.Dial(target.addr, ftp.DialWithTimeout(timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrapf(err, "ftp: dial %s", target.addr)
	}
	defer conn.Quit() //nolint:errcheck

	if err := conn.Login(target.user, target.pass); err != nil {
		return nil, eris.Wrap(err, "ftp: login")
	}

	resp, err := conn.Retr(target.path)
	if err != nil {
		return nil, eris.Wrapf(err, "ftp: retrieve %s", target.path)
	}
	defer resp.Close() //nolint:errcheck

	return Decode(ctx, format, resp, f.Options)
}
