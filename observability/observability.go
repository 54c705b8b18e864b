package observability

// Logger is the injected sink for structured events emitted by the
// decoding pipeline. The library never writes to a fixed output stream;
// callers that want output plug in their own implementation, everyone
// else gets NopLogger.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
}

type Field interface {
	Key() string
	Value() interface{}
}

type stringField struct{ key, val string }

func (f stringField) Key() string        { return f.key }
func (f stringField) Value() interface{} { return f.val }

type intField struct {
	key string
	val int
}

func (f intField) Key() string        { return f.key }
func (f intField) Value() interface{} { return f.val }

type errorField struct {
	key string
	err error
}

func (f errorField) Key() string        { return f.key }
func (f errorField) Value() interface{} { return f.err }

func String(key, value string) Field    { return stringField{key, value} }
func Int(key string, value int) Field   { return intField{key, value} }
func Error(key string, err error) Field { return errorField{key, err} }

// NodeID and Offset tag an event with the node / byte position it
// concerns, so callers can point at the offending spot in the file.
func NodeID(id int) Field     { return intField{"node", id} }
func Offset(off int) Field    { return intField{"offset", off} }
func Tag(tag string) Field    { return stringField{"tag", tag} }
func Revision(r string) Field { return stringField{"revision", r} }

type NopLogger struct{}

func (NopLogger) Debug(string, ...Field) {}
func (NopLogger) Info(string, ...Field)  {}
func (NopLogger) Warn(string, ...Field)  {}
func (NopLogger) Error(string, ...Field) {}
func (NopLogger) With(...Field) Logger   { return NopLogger{} }

// Standard metric names emitted by the library.
const (
	MetricDecodeTime    = "uhs.decode.duration"
	MetricBuildTime     = "uhs.build.duration"
	MetricResolveTime   = "uhs.resolve.duration"
	MetricNodeCount     = "uhs.nodes.count"
	MetricSegmentCount  = "uhs.segments.count"
	MetricDanglingCount = "uhs.references.dangling"
)
