package rec

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi"
)

// strT is the JSON body shape for string settings.
type strT struct {
	Str string `json:"str"`
}

type boolT struct {
	Bool bool `json:"bool"`
}

// HTTPWrapper is an HTTP wrapper around a recorder that allows the folder
// and prefix to be changed on the fly.
type HTTPWrapper struct {
	*Recorder
}

// NewHTTPWrapper returns an HTTP wrapper around a recorder
func NewHTTPWrapper(r *Recorder) HTTPWrapper {
	return HTTPWrapper{r}
}

// SetRoot updates the root folder of the recorder
func (h HTTPWrapper) SetRoot(w http.ResponseWriter, r *http.Request) {
	str := strT{}
	err := json.NewDecoder(r.Body).Decode(&str)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	rec := h.Recorder
	rec.Root = str.Str
	rec.updateFolder()
	if _, err = rec.mkDir(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetRoot gets the recorder's root folder and sends it back as JSON
func (h HTTPWrapper) GetRoot(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(strT{Str: h.Recorder.Root})
}

// SetPrefix updates the filename prefix of the recorder
func (h HTTPWrapper) SetPrefix(w http.ResponseWriter, r *http.Request) {
	str := strT{}
	err := json.NewDecoder(r.Body).Decode(&str)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.Recorder.Prefix = str.Str
	h.Recorder.counter = 0
	w.WriteHeader(http.StatusOK)
}

// GetPrefix gets the recorder's prefix and sends it back as JSON
func (h HTTPWrapper) GetPrefix(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(strT{Str: h.Recorder.Prefix})
}

// SetEnabled sets the recorder's Enabled field
func (h HTTPWrapper) SetEnabled(w http.ResponseWriter, r *http.Request) {
	bT := boolT{}
	err := json.NewDecoder(r.Body).Decode(&bT)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.Recorder.Enabled = bT.Bool
}

// GetEnabled returns the Recorder's Enabled field
func (h HTTPWrapper) GetEnabled(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(boolT{Bool: h.Recorder.Enabled})
}

// Inject adds GET and POST routes under /autowrite which manipulate this
// wrapper's recorder.
func (h HTTPWrapper) Inject(rt chi.Router) {
	rt.Post("/autowrite/root", h.SetRoot)
	rt.Get("/autowrite/root", h.GetRoot)
	rt.Post("/autowrite/prefix", h.SetPrefix)
	rt.Get("/autowrite/prefix", h.GetPrefix)
	rt.Post("/autowrite/enabled", h.SetEnabled)
	rt.Get("/autowrite/enabled", h.GetEnabled)
}
