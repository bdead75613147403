// Package browsertest provides an in-memory browser.Driver for tests.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/use-agent/urlgrab/browser"
)

// Page is the canned content served for one URL.
type Page struct {
	Title string
	HTML  string
	Text  string
}

// Driver is a scriptable browser.Driver. LaunchErrs, NavigateErrs and
// TitleErrs are consumed in order, one per call; a nil entry (or an
// exhausted slice) means success.
type Driver struct {
	Pages map[string]Page

	LaunchErrs   []error
	NavigateErrs []error
	TitleErrs    []error

	// CrashOnNavigateError marks the instance dead when a scripted
	// navigation error is returned, as if the browser process exited.
	CrashOnNavigateError bool

	mu        sync.Mutex
	launches  int
	instances []*Instance
}

var _ browser.Driver = (*Driver)(nil)

func (d *Driver) Name() string { return "fake" }

func (d *Driver) Launch(ctx context.Context) (browser.Instance, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.launches++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(d.LaunchErrs) > 0 {
		err := d.LaunchErrs[0]
		d.LaunchErrs = d.LaunchErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	inst := &Instance{driver: d}
	d.instances = append(d.instances, inst)
	return inst, nil
}

// Launches counts Launch calls, failed ones included.
func (d *Driver) Launches() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.launches
}

// Instances returns every successfully launched instance.
func (d *Driver) Instances() []*Instance {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Instance(nil), d.instances...)
}

func (d *Driver) nextNavigateErr() error { return d.pop(&d.NavigateErrs) }

func (d *Driver) nextTitleErr() error { return d.pop(&d.TitleErrs) }

func (d *Driver) pop(errs *[]error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

// Instance is a fake browser with a single page.
type Instance struct {
	driver *Driver

	mu          sync.Mutex
	current     string
	dead        bool
	closed      bool
	navigations []string
}

var _ browser.Instance = (*Instance)(nil)

// ErrClosed is returned by calls on a closed or crashed instance.
var ErrClosed = errors.New("browser closed")

func (i *Instance) usable() error {
	if i.closed || i.dead {
		return ErrClosed
	}
	return nil
}

func (i *Instance) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	navErr := i.driver.nextNavigateErr()

	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.usable(); err != nil {
		return err
	}
	if navErr != nil {
		if i.driver.CrashOnNavigateError {
			i.dead = true
		}
		return navErr
	}
	if _, ok := i.driver.Pages[url]; !ok {
		return fmt.Errorf("net::ERR_NAME_NOT_RESOLVED at %s", url)
	}
	i.current = url
	i.navigations = append(i.navigations, url)
	return nil
}

func (i *Instance) page(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.usable(); err != nil {
		return Page{}, err
	}
	return i.driver.Pages[i.current], nil
}

func (i *Instance) URL(ctx context.Context) (string, error) {
	if _, err := i.page(ctx); err != nil {
		return "", err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.current, nil
}

func (i *Instance) Title(ctx context.Context) (string, error) {
	p, err := i.page(ctx)
	if err != nil {
		return "", err
	}
	if err := i.driver.nextTitleErr(); err != nil {
		return "", err
	}
	return p.Title, nil
}

func (i *Instance) HTML(ctx context.Context) (string, error) {
	p, err := i.page(ctx)
	return p.HTML, err
}

func (i *Instance) Text(ctx context.Context) (string, error) {
	p, err := i.page(ctx)
	return p.Text, err
}

func (i *Instance) Alive(context.Context) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return !i.dead && !i.closed
}

func (i *Instance) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.closed = true
	return nil
}

// Closed reports whether Close was called.
func (i *Instance) Closed() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.closed
}

// Navigations lists successful navigations on this instance.
func (i *Instance) Navigations() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.navigations...)
}
