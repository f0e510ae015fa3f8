package domain

import "errors"

// Taxonomia de errores del nucleo. Los servicios envuelven con %w para que
// los llamadores clasifiquen con errors.Is sin inspeccionar strings.
var (
	// ErrValidation: campo requerido vacio o invalido. Se detecta antes de
	// tocar el store, asi que nunca deja filas a medias.
	ErrValidation = errors.New("validation failed")

	// ErrStore: fallo transitorio al persistir. El input del usuario se
	// conserva para reintentar; el nucleo no reintenta por si solo.
	ErrStore = errors.New("store failure")

	// ErrChannel: fallo al suscribirse o publicar en el canal realtime.
	ErrChannel = errors.New("channel failure")

	// ErrSessionNotFound: la sesion no existe o ya fue cerrada.
	ErrSessionNotFound = errors.New("session not found")
)
