package i18n

import "net/http"

// Middleware injects a localizer into every request context. The language
// comes from the lang query parameter, then the lang cookie, then
// Accept-Language, falling back to the language given to Init.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var cookieLang string
			if c, err := r.Cookie("lang"); err == nil {
				cookieLang = c.Value
			}
			lang := Match(r.URL.Query().Get("lang"), cookieLang, r.Header.Get("Accept-Language"))
			ctx := WithLanguage(r.Context(), lang)
			w.Header().Set("Content-Language", lang)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
