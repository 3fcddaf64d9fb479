package attachment

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"path/filepath"
	"slices"

	"github.com/codefionn/webmessaging/internal/errcode"
	"github.com/codefionn/webmessaging/internal/logger"
	"github.com/codefionn/webmessaging/internal/protocol"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// ProgressFunc receives upload progress in percent.
type ProgressFunc func(percent float64)

// Uploader PUTs bytes to a presigned URL.
type Uploader interface {
	Upload(ctx context.Context, presigned protocol.PresignedURLResponse, data []byte, onProgress ProgressFunc) error
}

// UploadResult is posted back by an upload task when it finishes.
type UploadResult struct {
	AttachmentID string
	Err          error
}

// processed pairs an attachment with its payload and upload task.
type processed struct {
	attachment Attachment
	data       []byte
	onProgress ProgressFunc
	cancel     context.CancelFunc
}

// Pipeline owns every pending attachment of a session. All methods must be
// called from the session's event context; upload tasks only report through
// the sink passed to NewPipeline.
type Pipeline struct {
	token     string
	entries   map[string]*processed
	order     []string
	uploader  Uploader
	profile   fn.Option[Profile]
	sink      func(UploadResult)
	listeners []func(Attachment)
	log       *logger.Logger
}

// NewPipeline returns an empty pipeline. sink must hand results back to the
// event context.
func NewPipeline(token string, uploader Uploader, sink func(UploadResult), log *logger.Logger) *Pipeline {
	if log == nil {
		log = logger.Global()
	}
	return &Pipeline{
		token:    token,
		entries:  make(map[string]*processed),
		uploader: uploader,
		profile:  fn.None[Profile](),
		sink:     sink,
		log:      log.WithPrefix("attachments"),
	}
}

// OnUpdate registers a listener for attachment state changes.
func (p *Pipeline) OnUpdate(listener func(Attachment)) {
	p.listeners = append(p.listeners, listener)
}

// SetProfile applies the deployment's attachment policy.
func (p *Pipeline) SetProfile(profile fn.Option[Profile]) {
	p.profile = profile
}

// Get returns the attachment with id if the pipeline still owns it.
func (p *Pipeline) Get(id string) (Attachment, bool) {
	e, ok := p.entries[id]
	if !ok {
		return Attachment{}, false
	}
	return e.attachment, true
}

// Len returns the number of owned attachments.
func (p *Pipeline) Len() int {
	return len(p.entries)
}

// Prepare validates the file, records it as Presigning and returns the
// request for a presigned upload URL. A validation failure changes nothing.
func (p *Pipeline) Prepare(id string, data []byte, fileName string, onProgress ProgressFunc) (protocol.OnAttachmentRequest, error) {
	var err error
	if p.profile.IsSome() {
		err = p.profile.UnsafeFromSome().Validate(fileName, data)
	} else {
		err = validateFile(fileName, data)
	}
	if err != nil {
		p.log.Warn("attachment %s rejected: %v", fileName, err)
		return protocol.OnAttachmentRequest{}, err
	}

	e := &processed{
		attachment: Attachment{ID: id, FileName: fileName, FileSize: int64(len(data))},
		data:       data,
		onProgress: onProgress,
	}
	p.entries[id] = e
	p.order = append(p.order, id)
	p.set(e, Presigning{})

	return protocol.NewOnAttachmentRequest(p.token, id, fileName, fileType(fileName, data), int64(len(data))), nil
}

// Upload starts the upload task for the presigned URL.
func (p *Pipeline) Upload(resp protocol.PresignedURLResponse) {
	e, ok := p.entries[resp.AttachmentID]
	if !ok {
		p.log.Debug("presigned url for unknown attachment %s", resp.AttachmentID)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	p.set(e, Uploading{})

	id, data, progress := resp.AttachmentID, e.data, e.onProgress
	go func() {
		err := p.uploader.Upload(ctx, resp, data, progress)
		p.sink(UploadResult{AttachmentID: id, Err: err})
	}()
}

// HandleUploadResult applies the outcome of an upload task. Success is
// confirmed separately by the gateway's upload-success event.
func (p *Pipeline) HandleUploadResult(res UploadResult) {
	e, ok := p.entries[res.AttachmentID]
	if !ok {
		return
	}
	if res.Err == nil {
		e.cancel = nil
		p.log.Debug("upload of %s finished, awaiting confirmation", res.AttachmentID)
		return
	}
	if errcode.IsCanceled(res.Err) {
		p.log.Debug("upload of %s cancelled", res.AttachmentID)
		return
	}

	code, message := errcode.UnexpectedError, res.Err.Error()
	var ecErr *errcode.Error
	if errors.As(res.Err, &ecErr) {
		code, message = ecErr.Code, ecErr.Message
	}
	p.log.Warn("upload of %s failed: %v", res.AttachmentID, res.Err)
	p.finish(e, Error{Code: code, Message: message})
}

// OnUploadSuccess marks the attachment Uploaded.
func (p *Pipeline) OnUploadSuccess(ev protocol.UploadSuccessEvent) {
	e, ok := p.entries[ev.AttachmentID]
	if !ok {
		return
	}
	e.cancel = nil
	e.data = nil
	p.set(e, Uploaded{DownloadURL: ev.DownloadURL})
}

// Detach cancels any upload. An Uploaded attachment moves to Detaching and
// the returned request asks the gateway to delete it; anything else is
// Detached at once.
func (p *Pipeline) Detach(id string) fn.Option[protocol.DeleteAttachmentRequest] {
	e, ok := p.entries[id]
	if !ok {
		return fn.None[protocol.DeleteAttachmentRequest]()
	}
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	if _, uploaded := e.attachment.State.(Uploaded); uploaded {
		p.set(e, Detaching{})
		return fn.Some(protocol.NewDeleteAttachmentRequest(p.token, id))
	}
	p.finish(e, Detached{})
	return fn.None[protocol.DeleteAttachmentRequest]()
}

// OnDetached completes a detach confirmed by the gateway.
func (p *Pipeline) OnDetached(id string) {
	if e, ok := p.entries[id]; ok {
		p.finish(e, Detached{})
	}
}

// OnDeleted removes an attachment the gateway deleted on its own.
func (p *Pipeline) OnDeleted(id string) {
	if e, ok := p.entries[id]; ok {
		p.finish(e, Deleted{})
	}
}

// OnError fails one attachment.
func (p *Pipeline) OnError(id string, code errcode.ErrorCode, message string) {
	e, ok := p.entries[id]
	if !ok {
		return
	}
	if e.cancel != nil {
		e.cancel()
	}
	p.finish(e, Error{Code: code, Message: message})
}

// OnPresignError fails every attachment still waiting for its presigned URL.
// It reports whether any attachment was affected.
func (p *Pipeline) OnPresignError(code errcode.ErrorCode, message string) bool {
	failed := false
	for _, e := range p.ordered() {
		if _, ok := e.attachment.State.(Presigning); ok {
			p.finish(e, Error{Code: code, Message: message})
			failed = true
		}
	}
	return failed
}

// OnSending moves every Uploaded attachment to Sending.
func (p *Pipeline) OnSending() {
	for _, e := range p.ordered() {
		if _, ok := e.attachment.State.(Uploaded); ok {
			p.set(e, Sending{})
		}
	}
}

// OnSent hands the attachments echoed by the gateway over to the message.
// downloadURLs maps attachment id to its URL in the echo.
func (p *Pipeline) OnSent(downloadURLs map[string]string) {
	for _, e := range p.ordered() {
		url, ok := downloadURLs[e.attachment.ID]
		if !ok {
			continue
		}
		if url == "" {
			url = e.attachment.DownloadURL()
		}
		p.finish(e, Sent{DownloadURL: url})
	}
}

// OnMessageError fails every attachment that was riding on the failed send.
func (p *Pipeline) OnMessageError(code errcode.ErrorCode, message string) {
	for _, e := range p.ordered() {
		if _, ok := e.attachment.State.(Sending); ok {
			p.finish(e, Error{Code: code, Message: message})
		}
	}
}

// UploadedAttachments returns the attachments ready to be sent.
func (p *Pipeline) UploadedAttachments() []Attachment {
	var out []Attachment
	for _, e := range p.ordered() {
		if _, ok := e.attachment.State.(Uploaded); ok {
			out = append(out, e.attachment)
		}
	}
	return out
}

// ClearAll drops every attachment without notifying listeners.
func (p *Pipeline) ClearAll() {
	for _, e := range p.entries {
		if e.cancel != nil {
			e.cancel()
		}
		e.data = nil
	}
	p.entries = make(map[string]*processed)
	p.order = nil
}

func (p *Pipeline) ordered() []*processed {
	out := make([]*processed, 0, len(p.order))
	for _, id := range p.order {
		if e, ok := p.entries[id]; ok {
			out = append(out, e)
		}
	}
	return out
}

func (p *Pipeline) set(e *processed, s State) {
	e.attachment.State = s
	p.log.Debug("attachment %s -> %s", e.attachment.ID, s)
	for _, listener := range p.listeners {
		listener(e.attachment)
	}
}

// finish notifies the terminal state and releases the entry.
func (p *Pipeline) finish(e *processed, s State) {
	id := e.attachment.ID
	e.data = nil
	delete(p.entries, id)
	p.order = slices.DeleteFunc(p.order, func(o string) bool { return o == id })
	p.set(e, s)
}

func fileType(fileName string, data []byte) string {
	if t := mime.TypeByExtension(filepath.Ext(fileName)); t != "" {
		return t
	}
	return http.DetectContentType(data)
}
