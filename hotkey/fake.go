package hotkey

// FakeHotkey is driven by SimKeydown and SimKeyup.
type FakeHotkey struct {
	keydown    chan struct{}
	keyup      chan struct{}
	registered bool
}

func NewFake() *FakeHotkey {
	return &FakeHotkey{
		keydown: make(chan struct{}),
		keyup:   make(chan struct{}),
	}
}

func (f *FakeHotkey) Register() error          { f.registered = true; return nil }
func (f *FakeHotkey) Unregister()              { f.registered = false }
func (f *FakeHotkey) Keydown() <-chan struct{} { return f.keydown }
func (f *FakeHotkey) Keyup() <-chan struct{}   { return f.keyup }

// SimKeydown blocks until the press is consumed.
func (f *FakeHotkey) SimKeydown() { f.keydown <- struct{}{} }
func (f *FakeHotkey) SimKeyup()   { f.keyup <- struct{}{} }
