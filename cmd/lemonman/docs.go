package main

// General API documentation for swaggo. Run `swag init -g cmd/lemonman/docs.go` to generate docs.
//
// @title           lemonman API
// @version         1.0
// @description     Admin panel proxying model management calls to a Lemonade Server instance.
//
// @contact.name   lemonman maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
