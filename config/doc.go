// Package config define o esquema de configuração do gateway e o carrega com
// koanf (padrões, YAML e variáveis de ambiente IAMGW_*).
package config
