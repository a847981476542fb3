package live

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/satlens/satlens"
	"github.com/satlens/satlens/mutation"
)

const (
	jsGetOuterHTML = `(xpath) => {
		const r = document.evaluate(xpath, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null);
		const n = r.singleNodeValue;
		return n && n.outerHTML ? n.outerHTML : "";
	}`
	jsSetOuterHTML = `(xpath, html) => {
		const r = document.evaluate(xpath, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null);
		const n = r.singleNodeValue;
		if (n && n.outerHTML) n.outerHTML = html;
	}`
	jsGetBody = `() => document.body ? document.body.outerHTML : ""`
	jsSetBody = `(html) => { document.body.outerHTML = html; }`
)

// Page observes one browser tab and rewrites its prices as it mutates.
type Page struct {
	svc    *satlens.Service
	page   *rod.Page
	url    string
	logger *slog.Logger

	nodes     *nodeMap
	debouncer *mutation.Debouncer

	// rawCh funnels records from rod's event goroutine into loop(), the
	// debouncer's single owner.
	rawCh  chan mutation.Record
	stopCh chan struct{}
	done   chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

func newPage(svc *satlens.Service, page *rod.Page, pageURL string, dc mutation.DebounceConfig, logger *slog.Logger) *Page {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Page{
		svc:    svc,
		page:   page,
		url:    pageURL,
		logger: logger.With("url", pageURL),
		nodes:  newNodeMap(),
		rawCh:  make(chan mutation.Record, 4096),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
	p.debouncer = mutation.NewDebouncer(dc, p.onFlush)
	return p
}

// start enables DOM tracking, runs the initial full rewrite, and begins
// listening for mutations.
func (p *Page) start(ctx context.Context) error {
	if err := (proto.DOMEnable{}).Call(p.page); err != nil {
		return fmt.Errorf("enable DOM domain: %w", err)
	}

	// depth -1 makes every node trackable; without it deep mutations are
	// silently dropped by CDP.
	depth := -1
	doc, err := proto.DOMGetDocument{Depth: &depth, Pierce: true}.Call(p.page)
	if err != nil {
		return fmt.Errorf("get document: %w", err)
	}
	p.nodes.rebuild(doc.Root)

	if err := p.rewriteBody(ctx); err != nil {
		p.logger.Warn("live: initial rewrite failed", "error", err)
	}

	go p.listen()
	go p.loop()
	return nil
}

// stop flushes pending mutations and closes the tab. It waits for loop()
// to finish its final flush before the tab goes away.
func (p *Page) stop() {
	close(p.stopCh)
	<-p.done
	p.cancel()
	if err := p.page.Close(); err != nil {
		p.logger.Warn("live: close tab", "error", err)
	}
}

// listen subscribes to the CDP DOM events that can introduce new price
// text: subtree insertions, text changes, and full document swaps. Events
// arrive on rod's goroutine; records are handed to loop() over rawCh so
// the debouncer stays single-owner.
func (p *Page) listen() {
	wait := p.page.Context(p.ctx).EachEvent(
		func(e *proto.DOMChildNodeInserted) {
			p.nodes.addNode(e.ParentNodeID, e.Node)
			xpath := p.nodes.xpath(e.Node.NodeID)
			if xpath == "" {
				return
			}
			p.feed(mutation.Record{
				Op:    mutation.OpInsert,
				XPath: xpath,
				Tag:   strings.ToLower(e.Node.NodeName),
			})
		},

		func(e *proto.DOMChildNodeRemoved) {
			p.nodes.removeNode(e.NodeID)
		},

		func(e *proto.DOMCharacterDataModified) {
			xpath := p.nodes.xpath(e.NodeID)
			if xpath == "" {
				return
			}
			p.feed(mutation.Record{
				Op:    mutation.OpText,
				XPath: xpath,
				Value: e.CharacterData,
			})
		},

		func(e *proto.DOMDocumentUpdated) {
			p.feed(mutation.Record{Op: mutation.OpDocReset})
		},
	)
	wait()
}

// feed hands a record to loop() without blocking forever on teardown.
func (p *Page) feed(rec mutation.Record) {
	select {
	case p.rawCh <- rec:
	case <-p.ctx.Done():
	}
}

// loop owns the debouncer. Every Add, C and Flush happens here, on one
// goroutine; the event handlers only ever touch rawCh.
func (p *Page) loop() {
	defer close(p.done)
	for {
		select {
		case <-p.stopCh:
			p.drain()
			p.debouncer.Flush()
			return
		case <-p.ctx.Done():
			return
		case rec := <-p.rawCh:
			p.debouncer.Add(rec)
		case <-p.debouncer.C():
			p.debouncer.Flush()
		}
	}
}

// drain empties whatever the event goroutine managed to queue before stop.
func (p *Page) drain() {
	for {
		select {
		case rec := <-p.rawCh:
			p.debouncer.Add(rec)
		default:
			return
		}
	}
}

// onFlush rewrites the subtrees named by a compressed mutation batch.
func (p *Page) onFlush(records []mutation.Record) {
	for _, rec := range records {
		switch rec.Op {
		case mutation.OpDocReset:
			// The document was swapped (navigation, document.write).
			// Re-track and rewrite from scratch.
			depth := -1
			doc, err := proto.DOMGetDocument{Depth: &depth, Pierce: true}.Call(p.page)
			if err != nil {
				p.logger.Warn("live: re-track document", "error", err)
				continue
			}
			p.nodes.rebuild(doc.Root)
			if err := p.rewriteBody(p.ctx); err != nil {
				p.logger.Warn("live: full rewrite after reset", "error", err)
			}

		case mutation.OpText:
			// Text changed inside an existing node. Rewrite its parent
			// element so the matcher sees the full run.
			xpath := strings.TrimSuffix(rec.XPath, "/text()")
			if err := p.rewriteSubtree(p.ctx, xpath); err != nil {
				p.logger.Debug("live: subtree rewrite", "xpath", xpath, "error", err)
			}

		case mutation.OpInsert:
			if rec.Tag == "#text" {
				continue
			}
			if err := p.rewriteSubtree(p.ctx, rec.XPath); err != nil {
				p.logger.Debug("live: subtree rewrite", "xpath", rec.XPath, "error", err)
			}
		}
	}
}

// rewriteBody runs a full rewrite over document.body.
func (p *Page) rewriteBody(ctx context.Context) error {
	res, err := p.page.Context(ctx).Eval(jsGetBody)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	src := res.Value.Str()
	if src == "" {
		return nil
	}

	out, err := p.svc.RewriteHTML(ctx, src, satlens.PageInfo{
		URL:      p.url,
		Source:   "live",
		Fragment: true,
	})
	if err != nil {
		return err
	}
	if out.Replaced == 0 {
		return nil
	}

	if _, err := p.page.Context(ctx).Eval(jsSetBody, out.HTML); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	p.logger.Info("live: page annotated", "replaced", out.Replaced)
	return nil
}

// rewriteSubtree rewrites the element at xpath in place. A pass that
// replaces nothing writes nothing back, which is what stops the engine
// from chasing its own mutations.
func (p *Page) rewriteSubtree(ctx context.Context, xpath string) error {
	if xpath == "" || xpath == "/html" {
		return p.rewriteBody(ctx)
	}

	res, err := p.page.Context(ctx).Eval(jsGetOuterHTML, xpath)
	if err != nil {
		return fmt.Errorf("read %s: %w", xpath, err)
	}
	src := res.Value.Str()
	if src == "" {
		return nil
	}

	out, err := p.svc.RewriteHTML(ctx, src, satlens.PageInfo{
		URL:      p.url,
		Source:   "live",
		Fragment: true,
	})
	if err != nil {
		return err
	}
	if out.Replaced == 0 {
		return nil
	}

	if _, err := p.page.Context(ctx).Eval(jsSetOuterHTML, xpath, out.HTML); err != nil {
		return fmt.Errorf("write %s: %w", xpath, err)
	}
	p.logger.Debug("live: subtree annotated", "xpath", xpath, "replaced", out.Replaced)
	return nil
}
