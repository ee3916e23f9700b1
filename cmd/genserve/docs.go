package main

// General API documentation for swaggo.
//
// @title           genserve API
// @version         1.0
// @description     Serves one local text-generation model over HTTP.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @host      127.0.0.1:8888
// @BasePath  /
//
// @schemes http
