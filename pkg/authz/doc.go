// Package authz is the authorization guard for cookbook and recipe routes.
//
// A caller's role on a cookbook is their membership row. On a recipe it is
// their direct membership row if one exists; otherwise membership in any
// cookbook containing the recipe grants VIEWER. The resolved role is
// checked against the route's allow-list and passed to the handler as an
// argument:
//
//	router.HandleFunc("/recipes/{id}",
//		guard.Require(membership.KindRecipe, "id", authz.OwnerEditor...)(h.update),
//	).Methods("PATCH")
//
// Unknown entities and missing memberships both yield Forbidden.
package authz
