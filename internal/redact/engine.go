// Package redact replaces literal text in PDF documents. The glyphs of each
// occurrence are removed from the page content, the region is covered with an
// opaque box and the replacement is drawn on top, so the rest of the page
// keeps its layout.
package redact

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/dharsanguruparan/DocScrub/internal/artifact"
	"github.com/dharsanguruparan/DocScrub/internal/model"
	pdfutil "github.com/dharsanguruparan/DocScrub/internal/pdf"
)

// DefaultFontSize is the size, in points, of inserted replacement text.
const DefaultFontSize = 10

// fontResource names the Helvetica font added to every modified page.
const fontResource = "DocScrubHelv"

// Engine applies replacement lists to documents. The zero value is not
// usable; call New.
type Engine struct {
	FontSize float64
}

// New returns an Engine that inserts text at DefaultFontSize.
func New() *Engine {
	return &Engine{FontSize: DefaultFontSize}
}

// Apply reads a document from in, applies pairs to every page in page order
// and writes the complete new document to out. Nothing is written to out
// unless the whole document was produced.
func (e *Engine) Apply(in io.Reader, out io.Writer, pairs model.Replacements) (count int, err error) {
	defer func() {
		if r := recover(); r != nil {
			count, err = 0, unparseable(fmt.Errorf("panic: %v", r))
		}
	}()
	data, err := io.ReadAll(in)
	if err != nil {
		return 0, unparseable(fmt.Errorf("read document: %w", err))
	}
	ctx, err := readContext(data)
	if err != nil {
		return 0, unparseable(err)
	}
	layouts, err := pdfutil.ReadPages(data)
	if err != nil {
		return 0, unparseable(err)
	}
	if len(layouts) != ctx.PageCount {
		return 0, unparseable(fmt.Errorf("page count mismatch: %d text pages, %d document pages", len(layouts), ctx.PageCount))
	}

	pages := make([]*page, len(layouts))
	for i, layout := range layouts {
		pages[i] = newPage(layout.Glyphs)
		count += pages[i].apply(pairs, e.FontSize)
	}
	for i, p := range pages {
		if len(p.ops) == 0 {
			continue
		}
		if err := rewritePage(ctx, i+1, p.covered(), p.content(fontResource)); err != nil {
			if _, ok := KindOf(err); ok {
				return 0, err
			}
			return 0, writeFailure(fmt.Errorf("page %d: %w", i+1, err))
		}
	}

	var buf bytes.Buffer
	if err := api.WriteContext(ctx, &buf); err != nil {
		return 0, writeFailure(fmt.Errorf("serialize document: %w", err))
	}
	if _, err := out.Write(buf.Bytes()); err != nil {
		return 0, writeFailure(err)
	}
	return count, nil
}

// ApplyFile is Apply between two paths. The output file only appears once it
// has been written completely.
func (e *Engine) ApplyFile(inPath, outPath string, pairs model.Replacements) (int, error) {
	f, err := os.Open(inPath)
	if err != nil {
		return 0, unparseable(fmt.Errorf("open document: %w", err))
	}
	defer f.Close()
	var buf bytes.Buffer
	count, err := e.Apply(f, &buf, pairs)
	if err != nil {
		return 0, err
	}
	if err := artifact.WriteFile(outPath, buf.Bytes()); err != nil {
		return 0, writeFailure(err)
	}
	return count, nil
}

func readContext(data []byte) (*pdfmodel.Context, error) {
	conf := pdfmodel.NewDefaultConfiguration()
	conf.ValidationMode = pdfmodel.ValidationRelaxed
	ctx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, fmt.Errorf("validate document: %w", err)
	}
	return ctx, nil
}

// rewritePage replaces the page content with a copy that no longer draws text
// under covered, followed by overlay. The original operations are wrapped in
// q/Q so whatever graphics state they leave behind does not leak into the
// overlay.
func rewritePage(ctx *pdfmodel.Context, pageNr int, covered []Rect, overlay []byte) error {
	pageDict, _, inherited, err := ctx.PageDict(pageNr, false)
	if err != nil {
		return fmt.Errorf("page dict: %w", err)
	}
	if pageDict == nil {
		return fmt.Errorf("page dict missing")
	}

	content, err := ctx.PageContent(pageDict, pageNr)
	if err != nil && !errors.Is(err, pdfmodel.ErrNoContent) {
		return unparseable(fmt.Errorf("page %d content: %w", pageNr, err))
	}
	if len(covered) > 0 && len(content) > 0 {
		var res types.Dict
		if inherited != nil {
			res = inherited.Resources
		}
		content, _, err = scrub(content, loadFonts(ctx, res), covered)
		if err != nil {
			return unparseable(fmt.Errorf("page %d content: %w", pageNr, err))
		}
	}

	if err := addFont(ctx, pageDict, inherited); err != nil {
		return err
	}
	buf := make([]byte, 0, len(content)+len(overlay)+8)
	buf = append(buf, "q\n"...)
	buf = append(buf, content...)
	buf = append(buf, "\nQ\n"...)
	buf = append(buf, overlay...)
	ref, err := newContentStream(ctx, buf)
	if err != nil {
		return err
	}
	pageDict["Contents"] = *ref
	return nil
}

func addFont(ctx *pdfmodel.Context, pageDict types.Dict, inherited *pdfmodel.InheritedPageAttrs) error {
	res, err := ctx.DereferenceDict(pageDict["Resources"])
	if err != nil {
		return fmt.Errorf("resources: %w", err)
	}
	if res == nil {
		res = types.Dict{}
		if inherited != nil {
			for k, v := range inherited.Resources {
				res[k] = v
			}
		}
		pageDict["Resources"] = res
	}
	fonts, err := ctx.DereferenceDict(res["Font"])
	if err != nil {
		return fmt.Errorf("font resources: %w", err)
	}
	if fonts == nil {
		fonts = types.Dict{}
		res["Font"] = fonts
	}
	fonts[fontResource] = types.Dict{
		"Type":     types.Name("Font"),
		"Subtype":  types.Name("Type1"),
		"BaseFont": types.Name("Helvetica"),
		"Encoding": types.Name("WinAnsiEncoding"),
	}
	return nil
}

func newContentStream(ctx *pdfmodel.Context, buf []byte) (*types.IndirectRef, error) {
	sd, err := ctx.XRefTable.NewStreamDictForBuf(buf)
	if err != nil {
		return nil, fmt.Errorf("new content stream: %w", err)
	}
	if err := sd.Encode(); err != nil {
		return nil, fmt.Errorf("encode content stream: %w", err)
	}
	ref, err := ctx.XRefTable.IndRefForNewObject(*sd)
	if err != nil {
		return nil, fmt.Errorf("register content stream: %w", err)
	}
	return ref, nil
}
