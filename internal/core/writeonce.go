package core

// WriteOnce is an optional value that can move from unset to set exactly once.
type WriteOnce[T any] struct {
	value T
	set   bool
}

func (w *WriteOnce[T]) Set(v T) error {
	if w.set {
		return ErrAlreadySet
	}
	w.value = v
	w.set = true
	return nil
}

func (w *WriteOnce[T]) Get() (T, bool) {
	return w.value, w.set
}
