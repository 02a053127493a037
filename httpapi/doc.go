// Package httpapi mounts the magic-link endpoints on a chi router.
//
//	POST /realms/{realm}/magic-link                   issue a link
//	GET  /realms/{realm}/login-actions/action-token   consume an action token
//
// Issue accepts a form post (the shape a login page submits) or a JSON body.
// Responses other than the consumption redirect are JSON documents naming the
// page and message key the host should render.
package httpapi
